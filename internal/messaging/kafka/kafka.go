package kafka

import (
	"context"
	"log/slog"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/GueYatma/koktek-front/internal/messaging"
)

// Broker publishes and consumes storefront events on Kafka.
type Broker struct {
	brokers []string
	writer  *kafkaGo.Writer
	logger  *slog.Logger
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

// NewBroker creates a Kafka publisher and subscriber. Topics are created on
// first write when the cluster allows it.
func NewBroker(brokers []string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		brokers: brokers,
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (k *Broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := messaging.Encode(key, event)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafkaGo.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *Broker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.logger.Info("Consumer shutting down", "topic", topic)
				return
			}
			k.logger.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			k.logger.Error("Error handling message", "topic", topic, "err", err)
		}
	}
}

// Close flushes pending writes.
func (k *Broker) Close() error {
	return k.writer.Close()
}
