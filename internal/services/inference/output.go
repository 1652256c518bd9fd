package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"ExoScan/internal/domain/models"
)

// workerOutput is the single JSON object a worker prints on success.
type workerOutput struct {
	Predictions json.RawMessage `json:"predictions"`
	Error       *string         `json:"error"`
}

type workerVerdict struct {
	IsExoplanet *bool    `json:"isExoplanet"`
	Confidence  *float64 `json:"confidence"`
}

// parseOutput interprets the stdout of a worker that exited zero. want is the
// number of rows submitted.
func parseOutput(stdout []byte, want int) ([]models.Verdict, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput, "worker produced no output")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var out workerOutput
	if err := dec.Decode(&out); err != nil {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput, "worker output is not valid JSON").WithError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput, "unexpected data after worker result")
	}

	if out.Error != nil {
		msg := *out.Error
		if msg == "" {
			msg = "worker reported an error"
		}
		return nil, models.NewEvaluationError(models.ErrReportedError, msg)
	}
	if len(out.Predictions) == 0 || bytes.Equal(out.Predictions, []byte("null")) {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput, "worker result has no predictions")
	}

	// predict_exoplanets may return {"error": ...} in place of the list.
	if out.Predictions[0] == '{' {
		var nested struct {
			Error *string `json:"error"`
		}
		if err := json.Unmarshal(out.Predictions, &nested); err == nil && nested.Error != nil {
			return nil, models.NewEvaluationError(models.ErrReportedError, *nested.Error)
		}
		return nil, models.NewEvaluationError(models.ErrMalformedOutput, "worker predictions must be an array")
	}

	var raw []workerVerdict
	if err := json.Unmarshal(out.Predictions, &raw); err != nil {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput, "worker predictions are malformed").WithError(err)
	}
	if len(raw) != want {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput,
			fmt.Sprintf("worker returned %d predictions for %d candidates", len(raw), want))
	}

	verdicts := make([]models.Verdict, len(raw))
	for i, v := range raw {
		if v.Confidence == nil {
			return nil, models.NewEvaluationError(models.ErrMalformedOutput,
				fmt.Sprintf("prediction %d has no confidence", i))
		}
		c := math.Min(math.Max(*v.Confidence, 0), 1)
		isCandidate := c > 0.5
		if v.IsExoplanet != nil {
			isCandidate = *v.IsExoplanet
		}
		verdicts[i] = models.Verdict{IsCandidate: isCandidate, Confidence: c}
	}
	return verdicts, nil
}
