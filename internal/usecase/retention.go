package usecase

import (
	"context"
	"time"

	applogger "AirView/pkg/logger"
)

// InsightDeleter deletes insights older than a cutoff.
type InsightDeleter interface {
	DeleteInsightsBefore(ctx context.Context, t time.Time) error
}

// RetentionJob periodically deletes insights older than maxAge.
type RetentionJob struct {
	svc      InsightDeleter
	interval time.Duration
	maxAge   time.Duration
	l        *applogger.Logger
	now      func() time.Time
}

func NewRetentionJob(svc InsightDeleter, interval, maxAge time.Duration, l *applogger.Logger) *RetentionJob {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RetentionJob{svc: svc, interval: interval, maxAge: maxAge, l: l, now: time.Now}
}

// Run deletes once immediately, then on every tick, until ctx is done.
func (j *RetentionJob) Run(ctx context.Context) {
	j.l.Info("retention job started",
		applogger.Duration("interval_ms", j.interval),
		applogger.Duration("max_age_ms", j.maxAge),
	)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		_ = j.RunOnce(ctx)
		select {
		case <-ctx.Done():
			j.l.Info("retention job stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce deletes everything older than now - maxAge.
func (j *RetentionJob) RunOnce(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	if err := j.svc.DeleteInsightsBefore(ctx, cutoff); err != nil {
		j.l.Error("retention delete failed", applogger.Time("cutoff", cutoff), applogger.Error(err))
		return err
	}
	return nil
}
