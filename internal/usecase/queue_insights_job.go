package usecase

import (
	"context"
	"encoding/json"

	domrepo "AirView/internal/domain/repository"
	internalrepo "AirView/internal/repository"
	applogger "AirView/pkg/logger"
	"AirView/pkg/queue"
)

// InsertInsightsJob drains the Redis queue into the store. It mirrors the
// Kafka handler: undecodable payloads fail (and are retried, then dead
// lettered), invalid records are dropped, the rest are inserted best-effort.
type InsertInsightsJob struct {
	svc     *InsightService
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewInsertInsightsJob(svc *InsightService, metrics domrepo.Metrics, l *applogger.Logger) *InsertInsightsJob {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &InsertInsightsJob{svc: svc, metrics: metrics, l: l}
}

func (j *InsertInsightsJob) Name() string { return "insert-insights" }

func (j *InsertInsightsJob) Type() string { return internalrepo.InsertInsightsMessage }

func (j *InsertInsightsJob) Handle(ctx context.Context, payload json.RawMessage) error {
	insights, err := DecodeInsights(payload)
	if err != nil {
		j.metrics.RecordError("queue_unmarshal")
		return err
	}
	j.svc.InsertInsights(ctx, dropInvalid(insights, j.metrics, j.l.With(applogger.String("job", j.Name()))))
	return nil
}

var _ queue.Job = (*InsertInsightsJob)(nil)
