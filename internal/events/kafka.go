package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher announces new sensor data on a Kafka topic. Messages are
// keyed by sensor id so that events about one sensor stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishSensorData(ctx context.Context, e domain.SensorDataEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal sensor data event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.SensorID, 10)),
		Value: value,
		Time:  e.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sensor data event: %w", err)
	}
	p.logger.Debug("sensor data event published",
		zap.Int64("sensor_id", e.SensorID),
		zap.String("kind", e.Kind),
		zap.Int64("count", e.Count),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishSensorData(context.Context, domain.SensorDataEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
