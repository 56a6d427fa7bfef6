package usecase

import (
	"context"
	"fmt"
	"time"

	"AirView/internal/domain/models"
	domrepo "AirView/internal/domain/repository"
)

// Ingestion routes.
const (
	RouteKafka  = "kafka"
	RouteQueue  = "queue"
	RouteDirect = "direct"
)

// InsightIngestor routes incoming insights to the configured backend: the
// Kafka topic for "kafka", the Redis work queue for "redis", otherwise a
// best-effort insert.
type InsightIngestor struct {
	pub     domrepo.InsightPublisher
	svc     *InsightService
	metrics domrepo.Metrics
	backend string
}

func NewInsightIngestor(pub domrepo.InsightPublisher, svc *InsightService, metrics domrepo.Metrics, backend string) *InsightIngestor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &InsightIngestor{pub: pub, svc: svc, metrics: metrics, backend: backend}
}

// IngestInsights hands insights to the backend and returns the route taken.
// Only the publishing routes can fail; direct inserts are best-effort.
func (g *InsightIngestor) IngestInsights(ctx context.Context, insights []models.Insight) (string, error) {
	if len(insights) == 0 {
		return g.route(), nil
	}

	start := time.Now()
	route := g.route()
	switch route {
	case RouteKafka, RouteQueue:
		if err := g.pub.PublishBatch(ctx, insights); err != nil {
			g.metrics.RecordError("ingest_publish")
			return route, fmt.Errorf("ingest insights: %w", err)
		}
	default:
		g.svc.InsertInsights(ctx, insights)
	}
	g.metrics.RecordLatency("ingest_insights", time.Since(start).Seconds())
	return route, nil
}

func (g *InsightIngestor) route() string {
	if g.pub == nil {
		return RouteDirect
	}
	switch g.backend {
	case "kafka":
		return RouteKafka
	case "redis":
		return RouteQueue
	default:
		return RouteDirect
	}
}
