package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"AirView/internal/domain/models"
	domrepo "AirView/internal/domain/repository"
	"AirView/internal/repository"
	"AirView/pkg/cache"
	applogger "AirView/pkg/logger"
	"AirView/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func hourly(site string, offset time.Duration, forecast bool) models.Insight {
	return models.Insight{
		Time:      t0.Add(offset),
		SiteID:    site,
		Frequency: models.FrequencyHourly,
		PM2_5:     10,
		PM10:      18,
		Forecast:  forecast,
	}
}

// countingRepo counts calls on top of the in-memory store and can fail
// selected operations.
type countingRepo struct {
	*repository.MemoryInsightRepository

	mu          sync.Mutex
	findAll     int
	failInsert  map[string]bool
	failFind    error
	failDelete  error
	deleteCalls []time.Time
}

func newCountingRepo() *countingRepo {
	return &countingRepo{
		MemoryInsightRepository: repository.NewMemoryInsightRepository(),
		failInsert:              map[string]bool{},
	}
}

func (r *countingRepo) FindAll(ctx context.Context, f domrepo.InsightFilter) ([]models.Insight, error) {
	r.mu.Lock()
	r.findAll++
	err := r.failFind
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryInsightRepository.FindAll(ctx, f)
}

func (r *countingRepo) Insert(ctx context.Context, in models.Insight) error {
	if r.failInsert[in.SiteID] {
		return errors.New("store rejected " + in.SiteID)
	}
	return r.MemoryInsightRepository.Insert(ctx, in)
}

func (r *countingRepo) DeleteAllByTimeBefore(ctx context.Context, t time.Time) error {
	r.mu.Lock()
	r.deleteCalls = append(r.deleteCalls, t)
	r.mu.Unlock()
	if r.failDelete != nil {
		return r.failDelete
	}
	return r.MemoryInsightRepository.DeleteAllByTimeBefore(ctx, t)
}

func (r *countingRepo) findCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findAll
}

type fixture struct {
	svc   *InsightService
	repo  *countingRepo
	cache *cache.MemoryCache
	logs  *bytes.Buffer
	spans *tracetest.SpanRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newCountingRepo()
	c := cache.NewMemoryCache()
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())
	logs := &bytes.Buffer{}
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	svc := NewInsightService(repo, c, applogger.NewWithWriter(logs, zerolog.DebugLevel, "test"), rec, tp.Tracer("test"), time.Hour)
	t.Cleanup(func() {
		_ = c.Close()
		_ = tp.Shutdown(context.Background())
	})
	return &fixture{svc: svc, repo: repo, cache: c, logs: logs, spans: sr}
}

func TestQueryInsightsCachesNonEmptyResults(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveAll(ctx, []models.Insight{hourly("a", 0, false), hourly("b", 0, false)}))

	filter := domrepo.NewFilter(domrepo.WithSites("a"))
	first, err := fx.svc.QueryInsights(ctx, filter)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, fx.repo.findCalls())

	ok, err := fx.cache.Exists(ctx, QueryCacheKey(filter))
	require.NoError(t, err)
	assert.True(t, ok)

	second, err := fx.svc.QueryInsights(ctx, domrepo.NewFilter(domrepo.WithSites("a", "a")))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fx.repo.findCalls(), "identical query must be served from cache")
}

func TestQueryInsightsDoesNotCacheEmptyResults(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	filter := domrepo.NewFilter(domrepo.WithSites("late"))

	got, err := fx.svc.QueryInsights(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, got)

	ok, err := fx.cache.Exists(ctx, QueryCacheKey(filter))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fx.repo.SaveAll(ctx, []models.Insight{hourly("late", 0, false)}))
	got, err = fx.svc.QueryInsights(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, fx.repo.findCalls())
}

func TestQueryInsightsPropagatesStoreErrors(t *testing.T) {
	fx := newFixture(t)
	fx.repo.failFind = errors.New("clickhouse unavailable")

	_, err := fx.svc.QueryInsights(context.Background(), domrepo.NewFilter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse unavailable")
}

func TestQueryInsightsOpensSpan(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveAll(ctx, []models.Insight{hourly("a", 0, false)}))

	_, err := fx.svc.QueryInsights(ctx, domrepo.NewFilter())
	require.NoError(t, err)
	_, err = fx.svc.QueryInsights(ctx, domrepo.NewFilter())
	require.NoError(t, err)

	spans := fx.spans.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "InsightService.QueryInsights", spans[0].Name())

	hit := map[bool]int{}
	for _, s := range spans {
		for _, kv := range s.Attributes() {
			if kv.Key == "airview.cache.hit" {
				hit[kv.Value.AsBool()]++
			}
		}
	}
	assert.Equal(t, map[bool]int{false: 1, true: 1}, hit)
}

type brokenCache struct{ cache.Service }

func (brokenCache) Get(context.Context, string, interface{}) error {
	return errors.New("redis timeout")
}

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("redis timeout")
}

func TestQueryInsightsToleratesCacheFailures(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	require.NoError(t, repo.SaveAll(ctx, []models.Insight{hourly("a", 0, false)}))
	logs := &bytes.Buffer{}
	svc := NewInsightService(repo, brokenCache{}, applogger.NewWithWriter(logs, zerolog.DebugLevel, "test"), nil, nil, time.Hour)

	got, err := svc.QueryInsights(ctx, domrepo.NewFilter())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, logs.String(), "insight cache read failed")
	assert.Contains(t, logs.String(), "insight cache write failed")
}

func TestForecastInsightsBefore(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{
		hourly("a", -2*time.Hour, true),
		hourly("a", -time.Hour, false),
		hourly("a", 0, true),
		hourly("a", time.Hour, true),
	}))

	got, err := fx.svc.ForecastInsightsBefore(ctx, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Forecast)
	assert.Equal(t, t0.Add(-2*time.Hour), got[0].Time)
}

func TestSaveInsightsUpserts(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	require.NoError(t, fx.svc.SaveInsights(ctx, nil))
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{hourly("a", 0, false)}))

	replaced := hourly("a", 0, false)
	replaced.PM2_5 = 42
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{replaced}))

	assert.Equal(t, 1, fx.repo.Len())
	got, err := fx.repo.FindAll(ctx, domrepo.NewFilter())
	require.NoError(t, err)
	assert.Equal(t, 42.0, got[0].PM2_5)
}

func TestInsertInsightsIsBestEffort(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.repo.failInsert["bad"] = true
	require.NoError(t, fx.repo.SaveAll(ctx, []models.Insight{hourly("dup", 0, false)}))

	batch := []models.Insight{
		hourly("a", 0, false),
		hourly("bad", 0, false),
		hourly("dup", 0, false),
		hourly("b", 0, false),
		hourly("bad", time.Hour, false),
	}
	fx.svc.InsertInsights(ctx, batch)

	// dup was already there; a and b are new.
	assert.Equal(t, 3, fx.repo.Len())
	got, err := fx.repo.FindAll(ctx, domrepo.NewFilter(domrepo.WithSites("a", "b")))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.Equal(t, 3, strings.Count(fx.logs.String(), "insight insert skipped"))
	assert.Contains(t, fx.logs.String(), `"level":"info"`)
}

func TestDeleteInsightsBefore(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{
		hourly("a", -time.Hour, false),
		hourly("a", -time.Nanosecond, true),
		hourly("a", 0, false),
		hourly("a", time.Hour, true),
	}))

	require.NoError(t, fx.svc.DeleteInsightsBefore(ctx, t0))

	got, err := fx.repo.FindAll(ctx, domrepo.NewFilter())
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, in := range got {
		assert.False(t, in.Time.Before(t0))
	}
	assert.Contains(t, fx.logs.String(), "Deleting Insights before 2024-03-01T12:00:00Z")
}

func TestDeleteInsightsBeforePropagatesErrors(t *testing.T) {
	fx := newFixture(t)
	fx.repo.failDelete = errors.New("mutation failed")

	err := fx.svc.DeleteInsightsBefore(context.Background(), t0)
	require.Error(t, err)
	assert.Contains(t, fx.logs.String(), "Deleting Insights before")
}

func TestWritesKeepCacheByDefault(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{hourly("a", 0, false)}))

	filter := domrepo.NewFilter(domrepo.WithSites("a"))
	_, err := fx.svc.QueryInsights(ctx, filter)
	require.NoError(t, err)

	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{hourly("a", time.Hour, false)}))
	got, err := fx.svc.QueryInsights(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, got, 1, "stale until the entry expires")
	assert.Equal(t, 1, fx.repo.findCalls())
}

func TestEvictOnWriteDropsCachedQueries(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.svc.EvictOnWrite(true)
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{hourly("a", 0, false)}))
	require.NoError(t, fx.cache.Set(ctx, "other:key", "kept", time.Hour))

	filter := domrepo.NewFilter(domrepo.WithSites("a"))
	warm := func() {
		t.Helper()
		_, err := fx.svc.QueryInsights(ctx, filter)
		require.NoError(t, err)
		ok, err := fx.cache.Exists(ctx, QueryCacheKey(filter))
		require.NoError(t, err)
		require.True(t, ok)
	}
	evicted := func() bool {
		ok, err := fx.cache.Exists(ctx, QueryCacheKey(filter))
		require.NoError(t, err)
		return !ok
	}

	warm()
	require.NoError(t, fx.svc.SaveInsights(ctx, []models.Insight{hourly("a", time.Hour, false)}))
	assert.True(t, evicted(), "save")
	got, err := fx.svc.QueryInsights(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	fx.svc.InsertInsights(ctx, []models.Insight{hourly("a", 0, false)})
	assert.False(t, evicted(), "duplicate-only insert writes nothing")
	fx.svc.InsertInsights(ctx, []models.Insight{hourly("a", 2*time.Hour, false)})
	assert.True(t, evicted(), "insert")

	warm()
	require.NoError(t, fx.svc.DeleteInsightsBefore(ctx, t0))
	assert.True(t, evicted(), "delete")

	ok, err := fx.cache.Exists(ctx, "other:key")
	require.NoError(t, err)
	assert.True(t, ok, "keys outside the query prefix survive")
}
