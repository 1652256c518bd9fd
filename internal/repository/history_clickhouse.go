package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
	"ExoScan/pkg/logger"
)

const historyColumns = "request_id, ts, source, backend, candidates, flagged, mean_confidence, error_code, processing_ms"

// insertChunk bounds the number of rows per INSERT statement.
const insertChunk = 2000

// ClickHouseHistoryStore keeps evaluation records in a MergeTree table.
type ClickHouseHistoryStore struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

func NewClickHouseHistoryStore(db *sql.DB, table string, log *logger.Logger) *ClickHouseHistoryStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &ClickHouseHistoryStore{db: db, table: table, log: log}
}

var _ domrepo.HistoryStore = (*ClickHouseHistoryStore)(nil)

// HistorySchema returns the DDL for the history table.
func HistorySchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    request_id String,
    ts DateTime64(3, 'UTC'),
    source LowCardinality(String),
    backend LowCardinality(String),
    candidates UInt32,
    flagged UInt32,
    mean_confidence Float64,
    error_code LowCardinality(String),
    processing_ms Int64
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (ts, request_id)
TTL toDateTime(ts) + INTERVAL 90 DAY`, table)
}

func (s *ClickHouseHistoryStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, HistorySchema(s.table)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) Record(ctx context.Context, rec *models.EvaluationRecord) error {
	return s.RecordBatch(ctx, []*models.EvaluationRecord{rec})
}

// RecordBatch inserts recs with multi-row VALUES statements. Nil records and
// records without a request id are skipped.
func (s *ClickHouseHistoryStore) RecordBatch(ctx context.Context, recs []*models.EvaluationRecord) error {
	for start := 0; start < len(recs); start += insertChunk {
		end := start + insertChunk
		if end > len(recs) {
			end = len(recs)
		}
		q, args := buildInsert(s.table, recs[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.log.Error("clickhouse history insert failed",
				logger.String("table", s.table),
				logger.Int("rows", len(args)/9),
				logger.Error(err),
			)
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

func buildInsert(table string, recs []*models.EvaluationRecord) (string, []interface{}) {
	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*9)
	for _, r := range recs {
		if r == nil || r.RequestID == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.RequestID,
			r.Timestamp.UTC(),
			r.Source,
			r.Backend,
			uint32(r.CandidateCount),
			uint32(r.Flagged),
			r.MeanConfidence,
			r.ErrorCode,
			r.ProcessingTimeMs,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, historyColumns, strings.Join(values, ",")), args
}

// Recent returns records in [from, to], newest first.
func (s *ClickHouseHistoryStore) Recent(ctx context.Context, from, to time.Time, limit int) ([]*models.EvaluationRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", historyColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]*models.EvaluationRecord, 0, limit)
	for rows.Next() {
		var (
			r          models.EvaluationRecord
			candidates uint32
			flagged    uint32
		)
		if err := rows.Scan(&r.RequestID, &r.Timestamp, &r.Source, &r.Backend,
			&candidates, &flagged, &r.MeanConfidence, &r.ErrorCode, &r.ProcessingTimeMs); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.CandidateCount = int(candidates)
		r.Flagged = int(flagged)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *ClickHouseHistoryStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseHistoryStore) Close() error { return nil }
