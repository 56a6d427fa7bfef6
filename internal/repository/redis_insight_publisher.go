package repository

import (
	"context"
	"fmt"

	"AirView/internal/domain/models"
	"AirView/internal/domain/repository"
	"AirView/pkg/queue"
)

// InsertInsightsMessage is the queue message type carrying insights to insert.
const InsertInsightsMessage = "insights.insert"

// RedisInsightPublisher enqueues insights on the Redis work queue, one
// message per batch.
type RedisInsightPublisher struct {
	q queue.Publisher
}

func NewRedisInsightPublisher(q queue.Publisher) *RedisInsightPublisher {
	return &RedisInsightPublisher{q: q}
}

func (p *RedisInsightPublisher) PublishBatch(ctx context.Context, insights []models.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	if err := p.q.PublishMessage(ctx, InsertInsightsMessage, insights); err != nil {
		return fmt.Errorf("enqueue %d insights: %w", len(insights), err)
	}
	return nil
}

// Close is a no-op; the queue's lifecycle belongs to the app.
func (p *RedisInsightPublisher) Close() error { return nil }

var _ repository.InsightPublisher = (*RedisInsightPublisher)(nil)
