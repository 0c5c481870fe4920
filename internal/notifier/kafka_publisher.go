package notifier

import (
	"context"
	"encoding/json"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes notifications to a Kafka topic, keyed by benchmark
// ID so events for one benchmark stay in order on a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewKafkaPublisher creates a KafkaPublisher over an existing writer.
func NewKafkaPublisher(writer *kafka.Writer, logger *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish sends one notification message to the Kafka topic.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal notification for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"topic": p.writer.Topic}).Error("Failed to write notification to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
