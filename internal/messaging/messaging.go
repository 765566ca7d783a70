// Package messaging publishes storefront domain events. Brokers live in the
// sub-packages; all of them carry the same JSON Envelope.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GueYatma/koktek-front/internal/entity"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Subscriber defines an interface for subscribing to a message topic.
// Consume blocks until ctx is done.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error)
}

// Envelope wraps every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode marshals event inside a new Envelope.
func Encode(key string, event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       fmt.Sprintf("%T", event),
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	if e, ok := event.(entity.Event); ok {
		env.Type = e.EventType()
	}
	return json.Marshal(env)
}

// Decode reads an Envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}

type discard struct{}

func (discard) PublishEvent(context.Context, string, string, any) error { return nil }

// Discard drops every event.
var Discard Publisher = discard{}
