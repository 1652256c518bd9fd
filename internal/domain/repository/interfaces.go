package repository

import (
	"context"
	"time"

	"ExoScan/internal/domain/models"
)

// HistorySink receives evaluation records. Implementations must be safe for
// concurrent use.
type HistorySink interface {
	Record(ctx context.Context, rec *models.EvaluationRecord) error
	RecordBatch(ctx context.Context, recs []*models.EvaluationRecord) error
	Close() error
}

// HistoryStore is a queryable HistorySink.
type HistoryStore interface {
	HistorySink
	Init(ctx context.Context) error // ensure tables
	Recent(ctx context.Context, from, to time.Time, limit int) ([]*models.EvaluationRecord, error)
	Health(ctx context.Context) error
}

type Metrics interface {
	RecordEvaluation(backend, outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCandidates(backend string, n int)
	WorkerStarted()
	WorkerFinished()
}
