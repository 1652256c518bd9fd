package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ExoScan/internal/domain/repository"
)

var _ repository.Metrics = (*Recorder)(nil)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordEvaluation("heuristic", "ok")
	r.RecordEvaluation("heuristic", "ok")
	r.RecordError("TIMEOUT")
	r.RecordCandidates("model", 3)
	r.WorkerStarted()
	r.WorkerStarted()
	r.WorkerFinished()
	r.RecordLatency("evaluate", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.evaluations.WithLabelValues("heuristic", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("TIMEOUT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.candidates.WithLabelValues("model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.inFlight))
}
