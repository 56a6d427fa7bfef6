package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AirView/internal/domain/models"
	domrepo "AirView/internal/domain/repository"
	"AirView/pkg/cache"
	applogger "AirView/pkg/logger"
	"AirView/pkg/tracing"

	"go.opentelemetry.io/otel/trace"
)

// CacheKeyPrefix namespaces query results in the cache.
const CacheKeyPrefix = "insights"

// InsightService is the read/write entry point for insights. Queries go
// through a cache-aside layer; writes go straight to the repository.
type InsightService struct {
	repo     domrepo.InsightRepository
	cache    cache.Service
	l        *applogger.Logger
	metrics  domrepo.Metrics
	tracer   trace.Tracer
	cacheTTL time.Duration
	evict    bool
}

// NewInsightService wires the service. A nil cache disables caching; nil
// logger, metrics or tracer fall back to no-ops.
func NewInsightService(
	repo domrepo.InsightRepository,
	c cache.Service,
	l *applogger.Logger,
	metrics domrepo.Metrics,
	tracer trace.Tracer,
	cacheTTL time.Duration,
) *InsightService {
	if l == nil {
		l = applogger.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if tracer == nil {
		tracer = tracing.NewNoop().Tracer()
	}
	return &InsightService{
		repo:     repo,
		cache:    c,
		l:        l,
		metrics:  metrics,
		tracer:   tracer,
		cacheTTL: cacheTTL,
	}
}

// EvictOnWrite makes every successful write drop all cached query results,
// so reads see new data before cacheTTL runs out.
func (s *InsightService) EvictOnWrite(on bool) *InsightService {
	s.evict = on
	return s
}

func (s *InsightService) evictQueries(ctx context.Context) {
	if !s.evict || s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, cache.BuildPattern(CacheKeyPrefix)); err != nil {
		s.l.Warn("insight cache eviction failed", applogger.Error(err))
	}
}

// QueryCacheKey returns the cache key under which results for filter live.
func QueryCacheKey(filter domrepo.InsightFilter) string {
	return cache.GenerateKey(CacheKeyPrefix, cache.HashKey(filter.Key()))
}

// QueryInsights returns the insights matching filter, ordered by time then
// site id. Non-empty results are cached; empty ones never are, so data that
// arrives later is visible on the next call.
func (s *InsightService) QueryInsights(ctx context.Context, filter domrepo.InsightFilter) (out []models.Insight, err error) {
	ctx, span := tracing.StartSpan(ctx, s.tracer, "InsightService.QueryInsights",
		tracing.AttrFilterKey.String(filter.Key()),
	)
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	key := QueryCacheKey(filter)

	if s.cache != nil {
		var cached []models.Insight
		cerr := s.cache.Get(ctx, key, &cached)
		switch {
		case cerr == nil:
			s.metrics.RecordCache(true)
			span.SetAttributes(tracing.AttrCacheHit.Bool(true), tracing.AttrResultCount.Int(len(cached)))
			s.metrics.RecordLatency("query_insights", time.Since(start).Seconds())
			return cached, nil
		case !errors.Is(cerr, cache.ErrCacheMiss):
			s.l.Warn("insight cache read failed", applogger.String("key", key), applogger.Error(cerr))
		}
		s.metrics.RecordCache(false)
	}
	span.SetAttributes(tracing.AttrCacheHit.Bool(false))

	out, err = s.repo.FindAll(ctx, filter)
	if err != nil {
		s.metrics.RecordError("query_insights")
		return nil, fmt.Errorf("query insights: %w", err)
	}
	span.SetAttributes(tracing.AttrResultCount.Int(len(out)))

	if len(out) > 0 && s.cache != nil {
		if cerr := s.cache.Set(ctx, key, out, s.cacheTTL); cerr != nil {
			s.l.Warn("insight cache write failed", applogger.String("key", key), applogger.Error(cerr))
		}
	}

	s.metrics.RecordLatency("query_insights", time.Since(start).Seconds())
	return out, nil
}

// ForecastInsightsBefore returns forecast insights with Time strictly before t.
func (s *InsightService) ForecastInsightsBefore(ctx context.Context, t time.Time) ([]models.Insight, error) {
	start := time.Now()
	out, err := s.repo.FindAllByTimeBeforeAndForecast(ctx, t, true)
	if err != nil {
		s.metrics.RecordError("forecast_insights")
		return nil, fmt.Errorf("forecast insights before %s: %w", t.Format(time.RFC3339), err)
	}
	s.metrics.RecordLatency("forecast_insights", time.Since(start).Seconds())
	return out, nil
}

// SaveInsights upserts insights in bulk.
func (s *InsightService) SaveInsights(ctx context.Context, insights []models.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	start := time.Now()
	if err := s.repo.SaveAll(ctx, insights); err != nil {
		s.metrics.RecordError("save_insights")
		return fmt.Errorf("save %d insights: %w", len(insights), err)
	}
	s.evictQueries(ctx)
	s.metrics.RecordLatency("save_insights", time.Since(start).Seconds())
	return nil
}

// InsertInsights inserts each insight independently. A failed record is
// logged and skipped; the call itself never fails.
func (s *InsightService) InsertInsights(ctx context.Context, insights []models.Insight) {
	start := time.Now()
	inserted := 0
	for _, in := range insights {
		if err := s.repo.Insert(ctx, in); err != nil {
			s.l.Info("insight insert skipped",
				applogger.String("insight", in.ID().String()),
				applogger.Error(err),
			)
			s.metrics.RecordInsert(false)
			continue
		}
		s.metrics.RecordInsert(true)
		inserted++
	}
	if inserted > 0 {
		s.evictQueries(ctx)
	}
	s.metrics.RecordLatency("insert_insights", time.Since(start).Seconds())
}

// DeleteInsightsBefore removes insights with Time < t.
func (s *InsightService) DeleteInsightsBefore(ctx context.Context, t time.Time) error {
	s.l.Info(fmt.Sprintf("Deleting Insights before %s", t.UTC().Format(time.RFC3339)),
		applogger.Time("before", t),
	)
	if err := s.repo.DeleteAllByTimeBefore(ctx, t); err != nil {
		s.metrics.RecordError("delete_insights")
		return fmt.Errorf("delete insights: %w", err)
	}
	s.evictQueries(ctx)
	s.metrics.RecordDelete()
	return nil
}

// Health reports whether the repository is reachable.
func (s *InsightService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}

type noopMetrics struct{}

func (noopMetrics) RecordInsert(bool)             {}
func (noopMetrics) RecordCache(bool)              {}
func (noopMetrics) RecordDelete()                 {}
func (noopMetrics) RecordError(string)            {}
func (noopMetrics) RecordLatency(string, float64) {}
