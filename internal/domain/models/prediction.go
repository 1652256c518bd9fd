package models

import "time"

// FluxSeries is a time-ordered sequence of brightness measurements of one star.
type FluxSeries []float64

// CandidateBatch is an ordered set of series; position is the correlation key
// between request rows and result rows.
type CandidateBatch []FluxSeries

// Verdict is the classification of a single flux series.
type Verdict struct {
	IsCandidate bool    `json:"isExoplanet"`
	Confidence  float64 `json:"confidence"`
}

// Backend names the evaluation strategy that produced a result.
type Backend string

const (
	BackendModel     Backend = "model"
	BackendHeuristic Backend = "heuristic"
	BackendAuto      Backend = "auto"
)

// RequestMetadata is observational only; it never affects classification.
type RequestMetadata struct {
	RequestID        string    `json:"requestId"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
	CandidateCount   int       `json:"candidateCount"`
	Timestamp        time.Time `json:"timestamp"`
	Backend          Backend   `json:"backend,omitempty"`
}

// EvaluationResult holds exactly one of Predictions or Err, plus metadata.
type EvaluationResult struct {
	Predictions []Verdict
	Err         *EvaluationError
	Metadata    RequestMetadata
}

// OK reports whether the evaluation succeeded.
func (r *EvaluationResult) OK() bool { return r != nil && r.Err == nil }

// Flagged returns the number of verdicts classified as candidates.
func (r *EvaluationResult) Flagged() int {
	n := 0
	for _, v := range r.Predictions {
		if v.IsCandidate {
			n++
		}
	}
	return n
}

// MeanConfidence returns the average confidence over all verdicts (0 if none).
func (r *EvaluationResult) MeanConfidence() float64 {
	if len(r.Predictions) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range r.Predictions {
		sum += v.Confidence
	}
	return sum / float64(len(r.Predictions))
}

// EvaluationRecord is the persisted/broadcast summary of one evaluation.
type EvaluationRecord struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"ts"`
	Source           string    `json:"source"`
	Backend          string    `json:"backend"`
	CandidateCount   int       `json:"candidates"`
	Flagged          int       `json:"flagged"`
	MeanConfidence   float64   `json:"mean_confidence"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ProcessingTimeMs int64     `json:"processing_ms"`
}

// NewEvaluationRecord summarises a result for history and the live feed.
func NewEvaluationRecord(res *EvaluationResult, source string) EvaluationRecord {
	rec := EvaluationRecord{
		RequestID:        res.Metadata.RequestID,
		Timestamp:        res.Metadata.Timestamp,
		Source:           source,
		Backend:          string(res.Metadata.Backend),
		CandidateCount:   res.Metadata.CandidateCount,
		ProcessingTimeMs: res.Metadata.ProcessingTimeMs,
	}
	if res.Err != nil {
		rec.ErrorCode = string(res.Err.Kind)
		return rec
	}
	rec.Flagged = res.Flagged()
	rec.MeanConfidence = res.MeanConfidence()
	return rec
}

// ResourceStatus reports presence of one external resource.
type ResourceStatus struct {
	Path    string `json:"path"`
	Present bool   `json:"present"`
}

// HealthReport is the capability view of the service. It is never an error.
type HealthReport struct {
	Status                string         `json:"status"`
	Message               string         `json:"message"`
	Backend               Backend        `json:"backend"`
	Model                 ResourceStatus `json:"model"`
	Worker                ResourceStatus `json:"worker"`
	MaxCandidates         int            `json:"maxCandidatesPerRequest"`
	MinPointsPerCandidate int            `json:"minPointsPerCandidate"`
	TimeoutMs             int64          `json:"timeoutMs"`
	WorkerSlots           int            `json:"workerSlots"`
	Timestamp             time.Time      `json:"timestamp"`
}
