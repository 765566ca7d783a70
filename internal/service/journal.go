package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/messaging"
	"github.com/GueYatma/koktek-front/internal/repository"
)

// ErrNoOrderID is returned for events that do not name an order.
var ErrNoOrderID = errors.New("journal: event carries no order_id")

// OrderJournal records published order events, one stream per order.
type OrderJournal struct {
	store  repository.EventStore
	logger *slog.Logger
}

func NewOrderJournal(store repository.EventStore, logger *slog.Logger) *OrderJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderJournal{store: store, logger: logger}
}

// Handle journals one encoded envelope.
func (j *OrderJournal) Handle(ctx context.Context, payload []byte) error {
	env, err := messaging.Decode(payload)
	if err != nil {
		return err
	}
	var ref struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(env.Payload, &ref); err != nil {
		return fmt.Errorf("failed to read %s payload: %w", env.Type, err)
	}
	if ref.OrderID == "" {
		return fmt.Errorf("%w (%s)", ErrNoOrderID, env.Type)
	}

	appended, err := j.store.AppendEvent(ctx, entity.EventStoreRecord{
		ID:         env.ID,
		StreamID:   ref.OrderID,
		EventType:  env.Type,
		Payload:    env.Payload,
		OccurredAt: env.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to journal %s: %w", env.Type, err)
	}
	if !appended {
		j.logger.Info("Event already journaled, skipping (idempotent)", "order_id", ref.OrderID, "event_id", env.ID)
		return nil
	}
	j.logger.Debug("Event journaled", "order_id", ref.OrderID, "type", env.Type)
	return nil
}

// Run consumes topics until ctx is done.
func (j *OrderJournal) Run(ctx context.Context, sub messaging.Subscriber, topics []string, group string) {
	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Consume(ctx, topic, group, j.Handle)
		}()
	}
	wg.Wait()
}

// History returns the journaled events of an order, oldest first.
func (j *OrderJournal) History(ctx context.Context, orderID string) ([]entity.EventStoreRecord, error) {
	return j.store.LoadEvents(ctx, orderID)
}
