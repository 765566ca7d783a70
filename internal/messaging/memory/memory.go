// Package memory is an in-process event bus on watermill's Go channel
// pub/sub, used when no broker is configured and in tests.
package memory

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/GueYatma/koktek-front/internal/messaging"
)

const keyMetadata = "key"

type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

var (
	_ messaging.Publisher  = (*Bus)(nil)
	_ messaging.Subscriber = (*Bus)(nil)
)

// NewBus creates a bus. With persistent set, subscribers also receive
// messages published before they subscribed.
func NewBus(logger *slog.Logger, persistent bool) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          persistent,
		}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

func (b *Bus) PublishEvent(_ context.Context, topic string, key string, event any) error {
	payload, err := messaging.Encode(key, event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(keyMetadata, key)
	return b.pubsub.Publish(topic, msg)
}

// Consume acks every message once handler returns; handler errors are only
// logged so a failing message is not redelivered forever.
func (b *Bus) Consume(ctx context.Context, topic string, _ string, handler func(ctx context.Context, payload []byte) error) {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		b.logger.Error("Error subscribing", "topic", topic, "err", err)
		return
	}
	for msg := range messages {
		if err := handler(msg.Context(), msg.Payload); err != nil {
			b.logger.Error("Error handling message", "topic", topic, "err", err)
		}
		msg.Ack()
	}
	b.logger.Info("Consumer shutting down", "topic", topic)
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
