package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/use-agent/jobscrape/config"
)

// Kafka is a Sink writing events to a Kafka topic, keyed by run ID so all
// events of one run land on the same partition.
type Kafka struct {
	w *kafka.Writer
}

// NewKafka creates a Kafka sink. It returns nil when no brokers are configured.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	slog.Info("kafka notifications enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)

	return &Kafka{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (k *Kafka) Name() string { return "kafka" }

// Publish writes event synchronously.
func (k *Kafka) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
