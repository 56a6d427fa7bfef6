package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"AirView/internal/domain/models"
	"AirView/internal/domain/repository"
	"AirView/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func insight(site string, offset time.Duration, forecast bool) models.Insight {
	return models.Insight{
		Time:      t0.Add(offset),
		SiteID:    site,
		Frequency: models.FrequencyHourly,
		PM2_5:     12.5,
		PM10:      20,
		Forecast:  forecast,
	}
}

func TestMemoryRepositoryInsertRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInsightRepository()

	require.NoError(t, repo.Insert(ctx, insight("a", 0, false)))

	dup := insight("a", 0, false)
	dup.PM2_5 = 99
	err := repo.Insert(ctx, dup)
	assert.True(t, errors.Is(err, repository.ErrDuplicateInsight))

	got, err := repo.FindAll(ctx, repository.NewFilter())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.5, got[0].PM2_5)
}

func TestMemoryRepositorySaveAllReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInsightRepository()

	require.NoError(t, repo.SaveAll(ctx, []models.Insight{insight("a", 0, false), insight("b", 0, false)}))

	updated := insight("a", 0, false)
	updated.PM10 = 55
	// Same instant in another zone is the same identity.
	updated.Time = updated.Time.In(time.FixedZone("EAT", 3*3600))
	require.NoError(t, repo.SaveAll(ctx, []models.Insight{updated}))

	assert.Equal(t, 2, repo.Len())
	got, err := repo.FindAll(ctx, repository.NewFilter(repository.WithSites("a")))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 55.0, got[0].PM10)
}

func TestMemoryRepositoryForecastBeforeIsStrict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInsightRepository()
	require.NoError(t, repo.SaveAll(ctx, []models.Insight{
		insight("a", -time.Hour, true),
		insight("a", 0, true),
		insight("b", -2*time.Hour, false),
		insight("c", -3*time.Hour, true),
	}))

	got, err := repo.FindAllByTimeBeforeAndForecast(ctx, t0, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].SiteID)
	assert.Equal(t, "a", got[1].SiteID)
	for _, in := range got {
		assert.True(t, in.Forecast)
		assert.True(t, in.Time.Before(t0))
	}
}

func TestMemoryRepositoryDeleteBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInsightRepository()
	require.NoError(t, repo.SaveAll(ctx, []models.Insight{
		insight("a", -time.Hour, false),
		insight("a", 0, true),
		insight("a", time.Hour, false),
	}))

	require.NoError(t, repo.DeleteAllByTimeBefore(ctx, t0))

	got, err := repo.FindAll(ctx, repository.NewFilter())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t0, got[0].Time)
	assert.Equal(t, t0.Add(time.Hour), got[1].Time)
}

type fakeProducer struct {
	topic  string
	msgs   []kafka.Message
	err    error
	closed bool
}

func (p *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []kafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return p.err
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaPublisherKeysBySite(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaInsightPublisher(prod, "airview.insights")

	require.NoError(t, pub.PublishBatch(context.Background(), nil))
	assert.Empty(t, prod.msgs)

	require.NoError(t, pub.PublishBatch(context.Background(), []models.Insight{insight("a", 0, false), insight("b", 0, true)}))
	assert.Equal(t, "airview.insights", prod.topic)
	require.Len(t, prod.msgs, 2)
	assert.Equal(t, "a", string(prod.msgs[0].Key))
	assert.Equal(t, insight("b", 0, true), prod.msgs[1].Value)

	prod.err = errors.New("broker down")
	assert.Error(t, pub.PublishBatch(context.Background(), []models.Insight{insight("a", 0, false)}))

	require.NoError(t, pub.Close())
	assert.True(t, prod.closed)
}

func TestInsightSchemaNamesTable(t *testing.T) {
	stmts := InsightSchema("airview", "insights")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS airview")
	assert.Contains(t, stmts[1], "airview.insights")
	assert.Contains(t, stmts[1], "ReplacingMergeTree(updated_at)")
	assert.Contains(t, stmts[1], "ORDER BY (site_id, frequency, time)")
}

type fakeQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType = msgType
	q.payload = payload
	return q.err
}

func TestRedisPublisherEnqueuesOneMessagePerBatch(t *testing.T) {
	q := &fakeQueue{}
	pub := NewRedisInsightPublisher(q)

	require.NoError(t, pub.PublishBatch(context.Background(), nil))
	assert.Empty(t, q.msgType)

	batch := []models.Insight{insight("a", 0, false), insight("b", time.Hour, false)}
	require.NoError(t, pub.PublishBatch(context.Background(), batch))
	assert.Equal(t, InsertInsightsMessage, q.msgType)
	assert.Equal(t, batch, q.payload)

	q.err = errors.New("redis down")
	assert.ErrorContains(t, pub.PublishBatch(context.Background(), batch), "enqueue 2 insights")
	assert.NoError(t, pub.Close())
}
