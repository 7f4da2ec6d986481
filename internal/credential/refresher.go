package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"marketplace-relay/internal/common/logging"
)

// DefaultSchedule refreshes the credential ahead of its assumed 60 minute TTL
const DefaultSchedule = "@every 55m"

// Refresher forces a credential refresh on a fixed cron schedule. A failed
// run is logged and the next attempt happens at the next scheduled tick.
type Refresher struct {
	guard    *Guard
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   logging.Logger
}

// NewRefresher validates schedule and registers the refresh job. Start must
// be called to begin running it.
func NewRefresher(guard *Guard, schedule string, timeout time.Duration, logger logging.Logger) (*Refresher, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = DefaultFlightTimeout
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	r := &Refresher{
		guard:    guard,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.WithFields(logging.String("component", "credential_refresher")),
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start performs one acquisition immediately and then follows the schedule
func (r *Refresher) Start() {
	go r.run()
	r.cron.Start()
	r.logger.Info("Credential refresher started", logging.String("schedule", r.schedule))
}

// Stop halts the schedule and waits for a running refresh or ctx, whichever
// comes first.
func (r *Refresher) Stop(ctx context.Context) {
	done := r.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// RunOnce performs a single refresh the way a scheduled tick does
func (r *Refresher) RunOnce() {
	r.run()
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cred, err := r.guard.Refresh(ctx)
	if err != nil {
		r.logger.Error("Background credential refresh failed", err, logging.String("schedule", r.schedule))
		return
	}
	r.logger.Info("Background credential refresh succeeded", logging.Time("expires_at", cred.ExpiresAt))
}
