package repository

import (
	"context"
	"fmt"

	"AirView/internal/domain/models"
	"AirView/internal/domain/repository"
	"AirView/pkg/kafka"
)

// BatchProducer is the part of kafka.Producer the publisher needs.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
	Close() error
}

// KafkaInsightPublisher puts insights on the ingestion topic, one message per
// insight keyed by site id so a site keeps its order within a partition.
type KafkaInsightPublisher struct {
	producer BatchProducer
	topic    string
}

func NewKafkaInsightPublisher(producer BatchProducer, topic string) *KafkaInsightPublisher {
	return &KafkaInsightPublisher{producer: producer, topic: topic}
}

func (p *KafkaInsightPublisher) PublishBatch(ctx context.Context, insights []models.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(insights))
	for _, in := range insights {
		msgs = append(msgs, kafka.Message{Key: []byte(in.SiteID), Value: in})
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish %d insights to %s: %w", len(insights), p.topic, err)
	}
	return nil
}

func (p *KafkaInsightPublisher) Close() error {
	return p.producer.Close()
}

var _ repository.InsightPublisher = (*KafkaInsightPublisher)(nil)
