package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]*models.EvaluationRecord
	fails   int
}

func (s *memorySink) Record(ctx context.Context, rec *models.EvaluationRecord) error {
	return s.RecordBatch(ctx, []*models.EvaluationRecord{rec})
}

func (s *memorySink) RecordBatch(_ context.Context, recs []*models.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("sink down")
	}
	s.batches = append(s.batches, append([]*models.EvaluationRecord(nil), recs...))
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) records() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	seen []string
}

func (b *recordingBroadcaster) Broadcast(rec *models.EvaluationRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, rec.RequestID)
}

func record(i int) *models.EvaluationRecord {
	return &models.EvaluationRecord{RequestID: fmt.Sprintf("r%d", i), Timestamp: time.Now()}
}

func TestHistoryPipeline_BatchesBySize(t *testing.T) {
	sink := &memorySink{}
	p := NewHistoryPipeline([]domrepo.HistorySink{sink}, nil, nil,
		WithBatchSize(2), WithFlushInterval(time.Hour))
	p.Start(context.Background())

	for i := 0; i < 4; i++ {
		require.True(t, p.Submit(record(i)))
	}
	assert.Eventually(t, func() bool { return sink.records() == 4 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		assert.Len(t, b, 2)
	}
}

func TestHistoryPipeline_StopFlushesRemainder(t *testing.T) {
	sink := &memorySink{}
	p := NewHistoryPipeline([]domrepo.HistorySink{sink}, nil, nil,
		WithBatchSize(100), WithFlushInterval(time.Hour))
	p.Start(context.Background())

	for i := 0; i < 3; i++ {
		p.Submit(record(i))
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 3, sink.records())
	assert.False(t, p.Submit(record(9)), "submit after stop")
}

func TestHistoryPipeline_RetriesFailedWrites(t *testing.T) {
	sink := &memorySink{fails: 2}
	p := NewHistoryPipeline([]domrepo.HistorySink{sink}, nil, nil,
		WithBatchSize(1), WithRetry(3, time.Millisecond))
	p.Start(context.Background())

	p.Submit(record(1))
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 1, sink.records())
}

func TestHistoryPipeline_DropsAfterRetriesExhausted(t *testing.T) {
	sink := &memorySink{fails: 5}
	p := NewHistoryPipeline([]domrepo.HistorySink{sink}, nil, nil,
		WithBatchSize(1), WithRetry(2, time.Millisecond))
	p.Start(context.Background())

	p.Submit(record(1))
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 0, sink.records())
	assert.Equal(t, 3, sink.fails, "two attempts consumed two failures")
}

func TestHistoryPipeline_FullBufferDrops(t *testing.T) {
	sink := &memorySink{}
	p := NewHistoryPipeline([]domrepo.HistorySink{sink}, nil, nil, WithBufferSize(1))

	assert.True(t, p.Submit(record(1)))
	assert.False(t, p.Submit(record(2)))
}

func TestHistoryPipeline_BroadcastsWithoutSinks(t *testing.T) {
	b := &recordingBroadcaster{}
	p := NewHistoryPipeline(nil, nil, nil, WithBroadcaster(b))
	p.Start(context.Background())

	assert.False(t, p.Submit(record(7)))
	assert.Equal(t, []string{"r7"}, b.seen)
	assert.NoError(t, p.Stop(context.Background()))
}
