package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"AirView/internal/domain/models"
	"AirView/internal/domain/repository"
)

// MemoryInsightRepository keeps insights in a map keyed by identity.
// It backs backend.type=memory and the service tests.
type MemoryInsightRepository struct {
	mu   sync.RWMutex
	data map[models.InsightID]models.Insight
}

func NewMemoryInsightRepository() *MemoryInsightRepository {
	return &MemoryInsightRepository{data: make(map[models.InsightID]models.Insight)}
}

func (r *MemoryInsightRepository) FindAll(_ context.Context, filter repository.InsightFilter) ([]models.Insight, error) {
	return r.collect(filter.Matches), nil
}

func (r *MemoryInsightRepository) FindAllByTimeBeforeAndForecast(_ context.Context, before time.Time, forecast bool) ([]models.Insight, error) {
	return r.collect(func(in models.Insight) bool {
		return in.Forecast == forecast && in.Time.Before(before)
	}), nil
}

func (r *MemoryInsightRepository) collect(keep func(models.Insight) bool) []models.Insight {
	r.mu.RLock()
	out := make([]models.Insight, 0, len(r.data))
	for _, in := range r.data {
		if keep(in) {
			out = append(out, in)
		}
	}
	r.mu.RUnlock()

	sortInsights(out)
	return out
}

func (r *MemoryInsightRepository) SaveAll(_ context.Context, insights []models.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, in := range insights {
		in.Time = in.Time.UTC()
		r.data[in.ID()] = in
	}
	return nil
}

func (r *MemoryInsightRepository) Insert(_ context.Context, in models.Insight) error {
	in.Time = in.Time.UTC()
	id := in.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[id]; exists {
		return fmt.Errorf("insert insight %s: %w", id, repository.ErrDuplicateInsight)
	}
	r.data[id] = in
	return nil
}

func (r *MemoryInsightRepository) DeleteAllByTimeBefore(_ context.Context, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, in := range r.data {
		if in.Time.Before(before) {
			delete(r.data, id)
		}
	}
	return nil
}

// Len returns the number of stored insights.
func (r *MemoryInsightRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryInsightRepository) Health(context.Context) error { return nil }

func (r *MemoryInsightRepository) Close() error { return nil }

func sortInsights(in []models.Insight) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].Time.Equal(in[j].Time) {
			return in[i].Time.Before(in[j].Time)
		}
		if in[i].SiteID != in[j].SiteID {
			return in[i].SiteID < in[j].SiteID
		}
		return in[i].Frequency < in[j].Frequency
	})
}

var _ repository.InsightRepository = (*MemoryInsightRepository)(nil)
