package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
	pkgkafka "ExoScan/pkg/kafka"
)

// HistoryIngestHandler consumes evaluation records from Kafka and writes
// them to the history store.
type HistoryIngestHandler struct {
	topic   string
	store   domrepo.HistorySink
	metrics domrepo.Metrics
}

func NewHistoryIngestHandler(topic string, store domrepo.HistorySink, metrics domrepo.Metrics) *HistoryIngestHandler {
	return &HistoryIngestHandler{topic: topic, store: store, metrics: metrics}
}

func (h *HistoryIngestHandler) Topic() string { return h.topic }

// Handle rejects records without a request id so they reach the DLQ instead
// of the table.
func (h *HistoryIngestHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.EvaluationRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.recordError("ingest_unmarshal")
		return fmt.Errorf("decode history record: %w", err)
	}
	if rec.RequestID == "" {
		h.recordError("ingest_invalid")
		return fmt.Errorf("history record has no request id")
	}
	if h.metrics != nil && !rec.Timestamp.IsZero() {
		h.metrics.RecordLatency("ingest_e2e", time.Since(rec.Timestamp).Seconds())
	}

	start := time.Now()
	err := h.store.Record(ctx, &rec)
	if h.metrics != nil {
		h.metrics.RecordLatency("history_insert", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("ingest_store")
		return fmt.Errorf("store history record: %w", err)
	}
	return nil
}

func (h *HistoryIngestHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*HistoryIngestHandler)(nil)
