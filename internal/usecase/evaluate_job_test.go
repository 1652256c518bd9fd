package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExoScan/internal/domain/models"
	"ExoScan/pkg/cache"
)

type captureQueue struct {
	msgType  string
	payloads []interface{}
	err      error
}

func (q *captureQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.msgType = msgType
	q.payloads = append(q.payloads, payload)
	return "msg-1", nil
}

func TestJobs_SubmitRunAndRead(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer c.Close()
	q := &captureQueue{}

	jobs := NewJobService(q, c, time.Hour)
	job, err := jobs.Submit(ctx, rows(2, 100, 0), "")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)
	assert.Equal(t, "api", job.Source)
	assert.Equal(t, EvaluateJobType, q.msgType)

	stored, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, stored.State)

	// Payloads arrive from Redis as raw JSON.
	raw, err := json.Marshal(q.payloads[0])
	require.NoError(t, err)

	handler := NewEvaluateJob(newTestEvaluator(models.BackendHeuristic, nil), c, time.Hour, nil)
	require.NoError(t, handler.Handle(ctx, json.RawMessage(raw)))

	done, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, done.State)
	assert.Len(t, done.Predictions, 2)
	require.NotNil(t, done.Metadata)
	assert.Equal(t, 2, done.Metadata.CandidateCount)

	// A redelivered message does not run twice.
	require.NoError(t, handler.Handle(ctx, json.RawMessage(raw)))
}

func TestJobs_FailedEvaluationIsStored(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer c.Close()
	q := &captureQueue{}

	jobs := NewJobService(q, c, time.Hour)
	job, err := jobs.Submit(ctx, "nope", "upload")
	require.NoError(t, err)

	handler := NewEvaluateJob(newTestEvaluator(models.BackendHeuristic, nil), c, time.Hour, nil)
	require.NoError(t, handler.Handle(ctx, q.payloads[0]))

	done, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, done.State)
	require.NotNil(t, done.Error)
	assert.Equal(t, models.ErrInvalidInput, done.Error.Code)
	assert.Equal(t, "Input data must be an array", done.Error.Message)
}

func TestJobs_UnknownAndEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer c.Close()

	jobs := NewJobService(&captureQueue{err: errors.New("redis down")}, c, time.Hour)
	_, err := jobs.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = jobs.Submit(ctx, rows(1, 1, 0), "api")
	assert.ErrorContains(t, err, "redis down")
}

func TestEvaluateJob_RejectsPayloadWithoutID(t *testing.T) {
	c := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer c.Close()
	handler := NewEvaluateJob(newTestEvaluator(models.BackendHeuristic, nil), c, time.Hour, nil)
	assert.Error(t, handler.Handle(context.Background(), EvaluatePayload{}))
}
