package usecase

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExoScan/internal/domain/models"
	"ExoScan/internal/domain/service"
	"ExoScan/internal/services/heuristic"
	"ExoScan/internal/services/validation"
	"ExoScan/pkg/cache"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	verdicts func(models.CandidateBatch) []models.Verdict
	err      error
	panicMsg string
}

func (g *fakeGateway) Predict(_ context.Context, batch models.CandidateBatch) ([]models.Verdict, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.verdicts != nil {
		return g.verdicts(batch), nil
	}
	out := make([]models.Verdict, len(batch))
	for i := range out {
		out[i] = models.Verdict{IsCandidate: true, Confidence: 0.9}
	}
	return out, nil
}

func (g *fakeGateway) Slots() int { return 4 }

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fileInfo struct{ name string }

func (f fileInfo) Name() string       { return f.name }
func (f fileInfo) Size() int64        { return 1 }
func (f fileInfo) Mode() fs.FileMode  { return 0o644 }
func (f fileInfo) ModTime() time.Time { return time.Time{} }
func (f fileInfo) IsDir() bool        { return false }
func (f fileInfo) Sys() interface{}   { return nil }

func statOf(present ...string) func(string) (os.FileInfo, error) {
	set := make(map[string]bool, len(present))
	for _, p := range present {
		set[p] = true
	}
	return func(path string) (os.FileInfo, error) {
		if set[path] {
			return fileInfo{name: path}, nil
		}
		return nil, fs.ErrNotExist
	}
}

// steppingClock advances 5ms on every read.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(5 * time.Millisecond)
		return t
	}
}

type captureHistory struct {
	mu   sync.Mutex
	recs []*models.EvaluationRecord
}

func (c *captureHistory) Submit(rec *models.EvaluationRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return true
}

const (
	modelPath  = "/srv/exoplanet_model.h5"
	scriptPath = "/srv/predict_service.py"
)

func testConfig(backend models.Backend) EvaluatorConfig {
	return EvaluatorConfig{
		Backend:         backend,
		Limits:          validation.DefaultLimits(),
		HeuristicLimits: validation.Limits{MaxCandidates: 0, MinPoints: 1},
		ModelPath:       modelPath,
		ScriptPath:      scriptPath,
		Timeout:         30 * time.Second,
		ResultCacheTTL:  time.Minute,
	}
}

func newTestEvaluator(backend models.Backend, gw *fakeGateway, opts ...EvaluatorOption) *Evaluator {
	base := []EvaluatorOption{
		WithClock(steppingClock()),
		WithStat(statOf(modelPath, scriptPath)),
		WithIDGenerator(func() string { return "req-1" }),
	}
	var g service.InferenceGateway
	if gw != nil {
		g = gw
	}
	return NewEvaluator(testConfig(backend), g, heuristic.New(heuristic.DefaultParams(), 7), nil, nil, append(base, opts...)...)
}

func rows(n, points int, v float64) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		row := make([]interface{}, points)
		for j := range row {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

func TestEvaluate_HeuristicZeros(t *testing.T) {
	e := newTestEvaluator(models.BackendHeuristic, nil)

	res := e.Evaluate(context.Background(), rows(2, 100, 0), "")
	require.True(t, res.OK())
	require.Len(t, res.Predictions, 2)
	for _, v := range res.Predictions {
		assert.False(t, v.IsCandidate)
		assert.LessOrEqual(t, v.Confidence, 0.05)
	}
	assert.Equal(t, 2, res.Metadata.CandidateCount)
	assert.Equal(t, models.BackendHeuristic, res.Metadata.Backend)
	assert.Equal(t, int64(5), res.Metadata.ProcessingTimeMs)
	assert.Equal(t, "req-1", res.Metadata.RequestID)
}

func TestEvaluate_HeuristicAcceptsShortRows(t *testing.T) {
	e := newTestEvaluator(models.BackendHeuristic, nil)
	res := e.Evaluate(context.Background(), rows(150, 1, 1), "manual")
	require.True(t, res.OK())
	assert.Len(t, res.Predictions, 150)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEvaluator(models.BackendAuto, gw)

	cases := []struct {
		input  interface{}
		reason string
		count  int
	}{
		{"not an array", "Input data must be an array", 0},
		{[]interface{}{}, "Input data cannot be empty", 0},
		{rows(101, 100, 1), "Maximum 100 candidates per request", 101},
		{rows(1, 99, 1), "Row 0 has insufficient data points (minimum 100 required)", 1},
	}
	for _, tc := range cases {
		res := e.Evaluate(context.Background(), tc.input, "api")
		require.NotNil(t, res.Err)
		assert.Equal(t, models.ErrInvalidInput, res.Err.Kind)
		assert.Equal(t, tc.reason, res.Err.Message)
		assert.Nil(t, res.Predictions)
		assert.Equal(t, tc.count, res.Metadata.CandidateCount)
		assert.False(t, res.Metadata.Timestamp.IsZero())
	}
	assert.Zero(t, gw.Calls(), "validation short-circuits before the worker")
}

func TestEvaluate_AutoUsesGatewayWhenResourcesPresent(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEvaluator(models.BackendAuto, gw)

	res := e.Evaluate(context.Background(), rows(3, 100, 1), "api")
	require.True(t, res.OK())
	assert.Len(t, res.Predictions, 3)
	assert.Equal(t, models.BackendModel, res.Metadata.Backend)
	assert.Equal(t, 1, gw.Calls())
}

func TestEvaluate_AutoFallsBackWhenModelMissing(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEvaluator(models.BackendAuto, gw, WithStat(statOf(scriptPath)))

	res := e.Evaluate(context.Background(), rows(2, 100, 0), "api")
	require.True(t, res.OK())
	assert.Equal(t, models.BackendHeuristic, res.Metadata.Backend)
	assert.Zero(t, gw.Calls())
}

func TestEvaluate_ModelModeReportsMissingResource(t *testing.T) {
	gw := &fakeGateway{}

	e := newTestEvaluator(models.BackendModel, gw, WithStat(statOf(scriptPath)))
	res := e.Evaluate(context.Background(), rows(1, 100, 1), "api")
	require.NotNil(t, res.Err)
	assert.Equal(t, models.ErrModelNotFound, res.Err.Kind)
	assert.Contains(t, res.Err.Message, modelPath)

	e = newTestEvaluator(models.BackendModel, gw, WithStat(statOf(modelPath)))
	res = e.Evaluate(context.Background(), rows(1, 100, 1), "api")
	require.NotNil(t, res.Err)
	assert.Equal(t, models.ErrServiceNotFound, res.Err.Kind)

	e = newTestEvaluator(models.BackendModel, gw, WithStat(statOf()))
	res = e.Evaluate(context.Background(), rows(1, 100, 1), "api")
	assert.Equal(t, models.ErrModelNotFound, res.Err.Kind, "model is checked first")

	assert.Zero(t, gw.Calls())
}

func TestEvaluate_GatewayErrorKeepsKindAndMetadata(t *testing.T) {
	gw := &fakeGateway{err: models.NewEvaluationError(models.ErrExecutionFailure, "boom")}
	e := newTestEvaluator(models.BackendModel, gw)

	res := e.Evaluate(context.Background(), rows(2, 100, 1), "api")
	require.NotNil(t, res.Err)
	assert.Equal(t, models.ErrExecutionFailure, res.Err.Kind)
	assert.Equal(t, "boom", res.Err.Message)
	assert.Equal(t, 2, res.Metadata.CandidateCount)
	assert.Equal(t, int64(5), res.Metadata.ProcessingTimeMs)
}

func TestEvaluate_PlainErrorBecomesInternal(t *testing.T) {
	gw := &fakeGateway{err: errors.New("disk on fire")}
	e := newTestEvaluator(models.BackendModel, gw)

	res := e.Evaluate(context.Background(), rows(1, 100, 1), "api")
	require.NotNil(t, res.Err)
	assert.Equal(t, models.ErrInternal, res.Err.Kind)
}

func TestEvaluate_RecoversPanics(t *testing.T) {
	gw := &fakeGateway{panicMsg: "secret internals"}
	e := newTestEvaluator(models.BackendModel, gw)

	res := e.Evaluate(context.Background(), rows(1, 100, 1), "api")
	require.NotNil(t, res.Err)
	assert.Equal(t, models.ErrInternal, res.Err.Kind)
	assert.NotContains(t, res.Err.Message, "secret")
	assert.Nil(t, res.Predictions)
	assert.Equal(t, int64(5), res.Metadata.ProcessingTimeMs)
}

func TestEvaluate_ResultCache(t *testing.T) {
	gw := &fakeGateway{}
	c := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer c.Close()
	e := newTestEvaluator(models.BackendModel, gw, WithResultCache(c))

	first := e.Evaluate(context.Background(), rows(2, 100, 1), "api")
	second := e.Evaluate(context.Background(), rows(2, 100, 1), "api")
	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, first.Predictions, second.Predictions)
	assert.Equal(t, 1, gw.Calls())

	e.Evaluate(context.Background(), rows(2, 100, 2), "api")
	assert.Equal(t, 2, gw.Calls())
}

func TestEvaluate_SubmitsHistory(t *testing.T) {
	h := &captureHistory{}
	e := newTestEvaluator(models.BackendHeuristic, nil, WithHistory(h))

	e.Evaluate(context.Background(), rows(2, 100, 0), "upload")
	e.Evaluate(context.Background(), "bad", "")

	require.Len(t, h.recs, 2)
	assert.Equal(t, "upload", h.recs[0].Source)
	assert.Equal(t, "heuristic", h.recs[0].Backend)
	assert.Equal(t, 2, h.recs[0].CandidateCount)
	assert.Empty(t, h.recs[0].ErrorCode)
	assert.Equal(t, "api", h.recs[1].Source)
	assert.Equal(t, "INVALID_INPUT", h.recs[1].ErrorCode)
}

func TestEvaluate_ConcurrentRequestsAreIndependent(t *testing.T) {
	gw := &fakeGateway{verdicts: func(b models.CandidateBatch) []models.Verdict {
		out := make([]models.Verdict, len(b))
		for i, s := range b {
			out[i] = models.Verdict{Confidence: s[0] / 10}
		}
		return out
	}}
	e := newTestEvaluator(models.BackendModel, gw)

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res := e.Evaluate(context.Background(), rows(n, 100, float64(n)), "api")
			assert.True(t, res.OK())
			assert.Len(t, res.Predictions, n)
			assert.InDelta(t, float64(n)/10, res.Predictions[0].Confidence, 1e-9)
		}(i)
	}
	wg.Wait()
}

func TestHealth(t *testing.T) {
	e := newTestEvaluator(models.BackendAuto, &fakeGateway{})
	h := e.Health(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.Model.Present)
	assert.True(t, h.Worker.Present)
	assert.Equal(t, 100, h.MaxCandidates)
	assert.Equal(t, 100, h.MinPointsPerCandidate)
	assert.Equal(t, int64(30000), h.TimeoutMs)
	assert.Equal(t, 4, h.WorkerSlots)

	e = newTestEvaluator(models.BackendAuto, &fakeGateway{}, WithStat(statOf()))
	h = e.Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.Model.Present)
	assert.Contains(t, h.Message, "heuristic")

	e = newTestEvaluator(models.BackendHeuristic, nil, WithStat(statOf()))
	h = e.Health(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 0, h.MaxCandidates)
	assert.Equal(t, 1, h.MinPointsPerCandidate)
	assert.Zero(t, h.WorkerSlots)
}
