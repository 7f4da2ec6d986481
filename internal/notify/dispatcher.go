package notify

import (
	"context"
	"encoding/json"
	"time"

	"marketplace-relay/internal/common/logging"
)

// Publisher is an optional event sink next to the Hub
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Emitter is what webhook handlers depend on
type Emitter interface {
	Emit(ctx context.Context, name string, data json.RawMessage) Event
}

// Dispatcher delivers each event to local clients, to other instances and
// to durable sinks. Sink failures are logged, never returned: a webhook is
// acknowledged whether or not every sink accepted the event.
type Dispatcher struct {
	hub        *Hub
	broker     *RedisBroker
	publishers []Publisher
	instanceID string
	timeout    time.Duration
	logger     logging.Logger
}

// NewDispatcher creates a dispatcher. broker may be nil for a single
// instance deployment.
func NewDispatcher(hub *Hub, broker *RedisBroker, instanceID string, logger logging.Logger, publishers ...Publisher) *Dispatcher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Dispatcher{
		hub:        hub,
		broker:     broker,
		publishers: publishers,
		instanceID: instanceID,
		timeout:    5 * time.Second,
		logger:     logger.WithFields(logging.String("component", "dispatcher")),
	}
}

// Emit builds and delivers an event, returning it for logging
func (d *Dispatcher) Emit(ctx context.Context, name string, data json.RawMessage) Event {
	evt := NewEvent(name, data)
	evt.Origin = d.instanceID

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if d.broker == nil {
		d.hub.Broadcast(evt)
	} else if err := d.broker.Publish(ctx, evt); err != nil {
		// Keep local clients informed even when Redis is down.
		d.logger.Error("Redis publish failed, delivering locally", err, logging.String("event_id", evt.ID))
		d.hub.Broadcast(evt)
	}

	for _, p := range d.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			d.logger.Error("Event publish failed", err, logging.String("event_id", evt.ID))
		}
	}

	d.logger.Debug("Event emitted",
		logging.String("event", name),
		logging.String("event_id", evt.ID),
		logging.Int("clients", d.hub.Clients()),
	)
	return evt
}

// Close shuts down every sink and disconnects clients
func (d *Dispatcher) Close() {
	if d.broker != nil {
		if err := d.broker.Close(); err != nil {
			d.logger.Warn("Closing Redis broker", logging.Err(err))
		}
	}
	for _, p := range d.publishers {
		if err := p.Close(); err != nil {
			d.logger.Warn("Closing publisher", logging.Err(err))
		}
	}
	d.hub.Close()
}

// Clients reports how many real-time clients this instance serves
func (d *Dispatcher) Clients() int {
	return d.hub.Clients()
}
