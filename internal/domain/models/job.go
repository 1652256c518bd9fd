package models

import "time"

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobError is the serialisable form of an EvaluationError.
type JobError struct {
	Code    ErrorKind `json:"code"`
	Message string    `json:"message"`
}

// Job is the stored state of an asynchronous evaluation.
type Job struct {
	ID          string           `json:"id"`
	State       JobState         `json:"state"`
	Source      string           `json:"source"`
	SubmittedAt time.Time        `json:"submittedAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Predictions []Verdict        `json:"predictions,omitempty"`
	Error       *JobError        `json:"error,omitempty"`
	Metadata    *RequestMetadata `json:"metadata,omitempty"`
}

// Complete records the outcome of res on the job.
func (j *Job) Complete(res *EvaluationResult, at time.Time) {
	j.UpdatedAt = at
	j.Metadata = &res.Metadata
	if res.Err != nil {
		j.State = JobFailed
		j.Error = &JobError{Code: res.Err.Kind, Message: res.Err.Message}
		return
	}
	j.State = JobSucceeded
	j.Predictions = res.Predictions
}
