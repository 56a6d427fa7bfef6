package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"AirView/internal/domain/models"
	domrepo "AirView/internal/domain/repository"
	pkgkafka "AirView/pkg/kafka"
	applogger "AirView/pkg/logger"
)

// KafkaInsightsHandler consumes the insights topic and inserts what it reads.
type KafkaInsightsHandler struct {
	topic   string
	svc     *InsightService
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaInsightsHandler(topic string, svc *InsightService, metrics domrepo.Metrics, l *applogger.Logger) *KafkaInsightsHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaInsightsHandler{topic: topic, svc: svc, metrics: metrics, l: l}
}

func (h *KafkaInsightsHandler) Topic() string { return h.topic }

// Handle accepts a JSON array of insights or a single insight object.
// Records that fail validation are dropped; the rest are inserted best-effort,
// so only an undecodable payload is returned as an error.
func (h *KafkaInsightsHandler) Handle(ctx context.Context, b []byte) error {
	insights, err := DecodeInsights(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	h.svc.InsertInsights(ctx, dropInvalid(insights, h.metrics, h.l.With(applogger.String("topic", h.topic))))
	return nil
}

// dropInvalid filters out records that fail validation, logging each one.
func dropInvalid(insights []models.Insight, metrics domrepo.Metrics, l *applogger.Logger) []models.Insight {
	valid := insights[:0]
	for _, in := range insights {
		if err := in.Validate(); err != nil {
			l.Warn("dropping invalid insight", applogger.Error(err))
			metrics.RecordInsert(false)
			continue
		}
		valid = append(valid, in)
	}
	return valid
}

// DecodeInsights parses a JSON array of insights or a single insight object.
func DecodeInsights(b []byte) ([]models.Insight, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if b[0] == '[' {
		var out []models.Insight
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode insights: %w", err)
		}
		return out, nil
	}
	var one models.Insight
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, fmt.Errorf("decode insight: %w", err)
	}
	return []models.Insight{one}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaInsightsHandler)(nil)
