package repository

import (
	"context"
	"errors"
	"time"

	"AirView/internal/domain/models"
)

// ErrDuplicateInsight is returned by Insert when a record with the same
// identity already exists.
var ErrDuplicateInsight = errors.New("insight already exists")

// InsightRepository persists insights. Implementations order results by
// time, then site id.
type InsightRepository interface {
	FindAll(ctx context.Context, filter InsightFilter) ([]models.Insight, error)
	FindAllByTimeBeforeAndForecast(ctx context.Context, before time.Time, forecast bool) ([]models.Insight, error)
	// SaveAll upserts: an existing record with the same identity is replaced.
	SaveAll(ctx context.Context, insights []models.Insight) error
	// Insert fails with ErrDuplicateInsight if the identity is taken.
	Insert(ctx context.Context, insight models.Insight) error
	DeleteAllByTimeBefore(ctx context.Context, before time.Time) error
	Health(ctx context.Context) error
	Close() error
}

// InsightPublisher hands insights to an asynchronous ingestion pipeline.
type InsightPublisher interface {
	PublishBatch(ctx context.Context, insights []models.Insight) error
	Close() error
}

type Metrics interface {
	RecordInsert(ok bool)
	RecordCache(hit bool)
	RecordDelete()
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
