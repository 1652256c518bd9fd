package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExoScan/internal/domain/models"
)

type fakeStore struct {
	recs []*models.EvaluationRecord
	err  error
}

func (s *fakeStore) Record(_ context.Context, rec *models.EvaluationRecord) error {
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeStore) RecordBatch(ctx context.Context, recs []*models.EvaluationRecord) error {
	for _, r := range recs {
		if err := s.Record(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

func TestHistoryIngestHandler(t *testing.T) {
	store := &fakeStore{}
	h := NewHistoryIngestHandler("exoscan.evaluations", store, nil)
	assert.Equal(t, "exoscan.evaluations", h.Topic())

	body := `{"request_id":"r1","ts":"` + time.Now().UTC().Format(time.RFC3339) + `","source":"api","backend":"model","candidates":3,"flagged":1,"mean_confidence":0.42,"processing_ms":12}`
	require.NoError(t, h.Handle(context.Background(), []byte(body)))
	require.Len(t, store.recs, 1)
	assert.Equal(t, "r1", store.recs[0].RequestID)
	assert.Equal(t, 3, store.recs[0].CandidateCount)

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"source":"api"}`)))

	store.err = errors.New("clickhouse down")
	assert.ErrorContains(t, h.Handle(context.Background(), []byte(body)), "clickhouse down")
}
