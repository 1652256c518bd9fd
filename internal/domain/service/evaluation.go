package service

import (
	"context"

	"ExoScan/internal/domain/models"
)

// InferenceGateway runs the trained model out of process.
type InferenceGateway interface {
	Predict(ctx context.Context, batch models.CandidateBatch) ([]models.Verdict, error)
	Slots() int
}

// CandidateClassifier scores a batch in process.
type CandidateClassifier interface {
	Classify(batch models.CandidateBatch) []models.Verdict
}

// Evaluator is the request entry point used by the transport layers.
type Evaluator interface {
	Evaluate(ctx context.Context, input any, source string) *models.EvaluationResult
	Health(ctx context.Context) models.HealthReport
}
