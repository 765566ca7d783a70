// Package nats publishes storefront events on NATS subjects named after the
// topics.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	natsGo "github.com/nats-io/nats.go"

	"github.com/GueYatma/koktek-front/internal/messaging"
)

// KeyHeader carries the event key (usually the order id).
const KeyHeader = "Koktek-Key"

type Broker struct {
	conn   *natsGo.Conn
	logger *slog.Logger
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

// Connect dials url and returns a broker owning the connection.
func Connect(url string, logger *slog.Logger) (*Broker, error) {
	conn, err := natsGo.Connect(url, natsGo.Name("koktek-storefront"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(conn, logger), nil
}

func New(conn *natsGo.Conn, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{conn: conn, logger: logger}
}

func (b *Broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := messaging.Encode(key, event)
	if err != nil {
		return err
	}
	msg := natsGo.NewMsg(topic)
	msg.Data = payload
	msg.Header.Set(KeyHeader, key)
	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Consume joins the queue group groupID on subject topic.
func (b *Broker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	sub, err := b.conn.QueueSubscribe(topic, groupID, func(msg *natsGo.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			b.logger.Error("Error handling message", "topic", topic, "err", err)
		}
	})
	if err != nil {
		b.logger.Error("Error subscribing", "topic", topic, "err", err)
		return
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		b.logger.Warn("Error unsubscribing", "topic", topic, "err", err)
	}
	b.logger.Info("Consumer shutting down", "topic", topic)
}

// Close drains the connection.
func (b *Broker) Close() error {
	return b.conn.Drain()
}
