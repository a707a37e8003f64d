// Package messaging publishes topology change notifications for
// downstream ingestion pipelines.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/models"
)

// TopologyPublisher notifies downstream consumers that an application's
// datasource topology changed.
type TopologyPublisher interface {
	PublishTopologyChange(ctx context.Context, appName, taskID string, next models.AppDataSource, previous *models.AppDataSource) error
	Close() error
}

// kafkaWriter is the subset of kafka.Writer used by the publisher.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer          kafkaWriter
	trailingMessage string
	logger          *zap.Logger
}

// Config holds Kafka producer settings.
type Config struct {
	Brokers         []string
	Topic           string
	TrailingMessage string
}

// NewKafkaPublisher creates a publisher writing to the configured topic.
// Messages are keyed by app name so all notifications for one
// application land on the same partition, in order.
func NewKafkaPublisher(cfg Config, logger *zap.Logger) TopologyPublisher {
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		trailingMessage: cfg.TrailingMessage,
		logger:          logger.Named("kafka"),
	}
}

// PublishTopologyChange writes a four-element JSON array: task id, the
// new topology, the previous topology (null for first-time onboarding)
// and a fixed trailing message.
func (p *kafkaPublisher) PublishTopologyChange(ctx context.Context, appName, taskID string, next models.AppDataSource, previous *models.AppDataSource) error {
	payload, err := json.Marshal([]any{taskID, next, previous, p.trailingMessage})
	if err != nil {
		return fmt.Errorf("failed to encode topology notification for %q: %w", appName, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(appName),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish topology notification for %q: %w", appName, err)
	}

	p.logger.Info("published topology change",
		zap.String("app_name", appName),
		zap.String("task_id", taskID),
		zap.Int("payload_bytes", len(payload)))
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}
