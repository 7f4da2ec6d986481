// Package notify fans order events out to real-time clients.
//
// Webhook handlers call Dispatcher.Emit. Events reach local WebSocket
// clients through the Hub, other relay instances through Redis pub/sub,
// and durable consumers through an AMQP queue. Every sink is optional
// except the Hub.
package notify

import (
	"encoding/json"
	"time"

	"github.com/lucsky/cuid"
)

// EventNewOrder is the only event the dashboard listens for
const EventNewOrder = "newOrder"

// Event is one notification. Data is passed through untouched.
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	Origin     string          `json:"origin,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEvent builds an event with a fresh id. A nil or empty data becomes
// JSON null.
func NewEvent(name string, data json.RawMessage) Event {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Event{
		ID:         cuid.New(),
		Name:       name,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// frame is what WebSocket clients receive
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (e Event) frame() frame {
	return frame{Event: e.Name, Data: e.Data}
}
