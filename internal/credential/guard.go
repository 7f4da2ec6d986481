package credential

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"marketplace-relay/internal/common/logging"
)

// acquireKey is the single slot every acquisition runs under
const acquireKey = "acquire"

// DefaultFlightTimeout bounds one shared acquisition
const DefaultFlightTimeout = 15 * time.Second

// Observer is notified after every acquisition attempt
type Observer interface {
	ObserveAcquisition(trigger string, err error, elapsed time.Duration)
}

// Guard is the sole writer of a Cache. At most one acquisition is in flight
// at any time, whether it was started by a request or by the Refresher.
type Guard struct {
	cache         Cache
	acquirer      Acquirer
	secrets       Secrets
	group         singleflight.Group
	flightTimeout time.Duration
	now           func() time.Time
	observer      Observer
	logger        logging.Logger
}

// GuardOption customises a Guard
type GuardOption func(*Guard)

// WithFlightTimeout bounds each shared acquisition
func WithFlightTimeout(timeout time.Duration) GuardOption {
	return func(g *Guard) {
		if timeout > 0 {
			g.flightTimeout = timeout
		}
	}
}

// WithObserver reports acquisition outcomes, e.g. to metrics
func WithObserver(observer Observer) GuardOption {
	return func(g *Guard) {
		g.observer = observer
	}
}

// WithGuardClock replaces time.Now, for tests
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a guard. A nil cache gets a fresh MemoryCache.
func NewGuard(cache Cache, acquirer Acquirer, secrets Secrets, logger logging.Logger, opts ...GuardOption) *Guard {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	g := &Guard{
		cache:         cache,
		acquirer:      acquirer,
		secrets:       secrets,
		flightTimeout: DefaultFlightTimeout,
		now:           time.Now,
		logger:        logger.WithFields(logging.String("component", "credential_guard")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured reports whether partner secrets are present
func (g *Guard) Configured() bool {
	return !g.secrets.Empty()
}

// Current returns the cached credential without checking its expiry
func (g *Guard) Current() *Credential {
	return g.cache.Load()
}

// EnsureFresh returns a credential that is valid now. When the cache is
// empty or stale it starts, or joins, the shared acquisition and waits for
// it. A failed acquisition leaves the cache untouched and is returned to
// every caller of that flight.
//
// Cancelling ctx only stops this caller from waiting; the shared flight
// keeps running for the others.
func (g *Guard) EnsureFresh(ctx context.Context) (*Credential, error) {
	if cred := g.cache.Load(); cred.Fresh(g.now()) {
		return cred, nil
	}
	return g.acquire(ctx, "demand")
}

// Refresh forces an acquisition even if the cached credential is still
// valid. On failure the previous credential stays in place.
func (g *Guard) Refresh(ctx context.Context) (*Credential, error) {
	return g.acquire(ctx, "scheduled")
}

func (g *Guard) acquire(ctx context.Context, trigger string) (*Credential, error) {
	ch := g.group.DoChan(acquireKey, func() (interface{}, error) {
		return g.runFlight(ctx, trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runFlight executes inside the singleflight slot
func (g *Guard) runFlight(ctx context.Context, trigger string) (*Credential, error) {
	// A demand flight can start right after another flight stored a fresh
	// credential; reuse it instead of logging in again.
	if trigger == "demand" {
		if cred := g.cache.Load(); cred.Fresh(g.now()) {
			return cred, nil
		}
	}

	// The flight outlives the caller that started it.
	flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.flightTimeout)
	defer cancel()

	start := time.Now()
	cred, err := g.acquirer.Acquire(flightCtx, g.secrets)
	if g.observer != nil {
		g.observer.ObserveAcquisition(trigger, err, time.Since(start))
	}
	if err != nil {
		g.logger.Warn("Credential acquisition failed",
			logging.String("trigger", trigger),
			logging.Bool("kept_previous", g.cache.Load() != nil),
			logging.Err(err),
		)
		return nil, err
	}

	g.cache.Store(cred)
	g.logger.Debug("Credential cached",
		logging.String("trigger", trigger),
		logging.Time("expires_at", cred.ExpiresAt),
	)
	return cred, nil
}
