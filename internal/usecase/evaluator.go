package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
	"ExoScan/internal/domain/service"
	"ExoScan/internal/services/validation"
	"ExoScan/pkg/cache"
	"ExoScan/pkg/logger"
)

const defaultSource = "api"

// HistorySubmitter accepts evaluation records for persistence and the feed.
type HistorySubmitter interface {
	Submit(rec *models.EvaluationRecord) bool
}

// EvaluatorConfig carries every path and limit the evaluator needs.
type EvaluatorConfig struct {
	Backend         models.Backend
	Limits          validation.Limits
	HeuristicLimits validation.Limits
	ModelPath       string
	ScriptPath      string
	Timeout         time.Duration
	ResultCacheTTL  time.Duration
}

// Evaluator validates a batch, picks a back end from resource presence and
// wraps the outcome with request metadata. It is the only component that
// reads the clock or the filesystem.
type Evaluator struct {
	cfg        EvaluatorConfig
	gateway    service.InferenceGateway
	classifier service.CandidateClassifier
	cache      cache.Service
	history    HistorySubmitter
	metrics    domrepo.Metrics
	log        *logger.Logger

	now   func() time.Time
	stat  func(string) (os.FileInfo, error)
	newID func() string
}

type EvaluatorOption func(*Evaluator)

// WithResultCache caches model verdicts by payload hash.
func WithResultCache(c cache.Service) EvaluatorOption {
	return func(e *Evaluator) { e.cache = c }
}

func WithHistory(h HistorySubmitter) EvaluatorOption {
	return func(e *Evaluator) { e.history = h }
}

func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithStat replaces the filesystem probe.
func WithStat(stat func(string) (os.FileInfo, error)) EvaluatorOption {
	return func(e *Evaluator) { e.stat = stat }
}

func WithIDGenerator(newID func() string) EvaluatorOption {
	return func(e *Evaluator) { e.newID = newID }
}

// NewEvaluator wires an evaluator. gateway may be nil only for the
// heuristic backend; metrics and log may be nil.
func NewEvaluator(cfg EvaluatorConfig, gateway service.InferenceGateway, classifier service.CandidateClassifier,
	metrics domrepo.Metrics, log *logger.Logger, opts ...EvaluatorOption) *Evaluator {
	if cfg.Backend == "" {
		cfg.Backend = models.BackendAuto
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Evaluator{
		cfg:        cfg,
		gateway:    gateway,
		classifier: classifier,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
		stat:       os.Stat,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate never returns nil and never panics. Exactly one of Predictions and
// Err is set on the result.
func (e *Evaluator) Evaluate(ctx context.Context, input any, source string) (res *models.EvaluationResult) {
	if source == "" {
		source = defaultSource
	}
	start := e.now()
	res = &models.EvaluationResult{
		Metadata: models.RequestMetadata{
			RequestID:      e.newID(),
			CandidateCount: validation.CountRows(input),
			Timestamp:      start.UTC(),
		},
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("evaluation panicked",
				logger.String("request_id", res.Metadata.RequestID),
				logger.String("panic", fmt.Sprint(r)),
			)
			res.Predictions = nil
			res.Err = models.NewEvaluationError(models.ErrInternal, "internal error during evaluation")
		}
		elapsed := e.now().Sub(start).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		res.Metadata.ProcessingTimeMs = elapsed
		e.observe(res, source)
	}()

	verdicts, backend, err := e.run(ctx, input)
	res.Metadata.Backend = backend
	if err != nil {
		res.Err = models.AsEvaluationError(err)
		return res
	}
	res.Predictions = verdicts
	return res
}

func (e *Evaluator) run(ctx context.Context, input any) ([]models.Verdict, models.Backend, error) {
	if e.cfg.Backend == models.BackendHeuristic {
		v := validation.Validate(input, e.cfg.HeuristicLimits)
		if !v.Valid {
			return nil, "", models.NewEvaluationError(models.ErrInvalidInput, v.Reason)
		}
		return e.classifier.Classify(v.Batch), models.BackendHeuristic, nil
	}

	v := validation.Validate(input, e.cfg.Limits)
	if !v.Valid {
		return nil, "", models.NewEvaluationError(models.ErrInvalidInput, v.Reason)
	}

	if missing := e.checkResources(); missing != nil {
		if e.cfg.Backend == models.BackendModel {
			return nil, "", missing
		}
		e.log.Warn("model resources unavailable, using heuristic classifier",
			logger.String("reason", missing.Message))
		return e.classifier.Classify(v.Batch), models.BackendHeuristic, nil
	}

	verdicts, err := e.predict(ctx, v.Batch)
	return verdicts, models.BackendModel, err
}

// checkResources reports the first missing worker resource, model first.
func (e *Evaluator) checkResources() *models.EvaluationError {
	if e.gateway == nil {
		return models.NewEvaluationError(models.ErrServiceNotFound, "inference worker is not configured")
	}
	if !e.present(e.cfg.ModelPath) {
		return models.NewEvaluationError(models.ErrModelNotFound,
			fmt.Sprintf("model artifact not found: %s", e.cfg.ModelPath))
	}
	if !e.present(e.cfg.ScriptPath) {
		return models.NewEvaluationError(models.ErrServiceNotFound,
			fmt.Sprintf("worker entry point not found: %s", e.cfg.ScriptPath))
	}
	return nil
}

func (e *Evaluator) present(path string) bool {
	if path == "" {
		return false
	}
	info, err := e.stat(path)
	return err == nil && !info.IsDir()
}

// predict calls the gateway, serving identical batches from the result
// cache when one is configured. Cache failures only cost a worker run.
func (e *Evaluator) predict(ctx context.Context, batch models.CandidateBatch) ([]models.Verdict, error) {
	if e.cache == nil || e.cfg.ResultCacheTTL <= 0 {
		return e.gateway.Predict(ctx, batch)
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return e.gateway.Predict(ctx, batch)
	}
	key := cache.GenerateKeyWithParams("result", cache.HashKey(payload))

	if cached, err := cache.GetTyped[[]models.Verdict](ctx, e.cache, key); err == nil && len(cached) == len(batch) {
		e.log.Debug("result cache hit", logger.String("key", key))
		return cached, nil
	}

	verdicts, err := e.gateway.Predict(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, key, verdicts, e.cfg.ResultCacheTTL); err != nil {
		e.log.Warn("result cache write failed", logger.Error(err))
	}
	return verdicts, nil
}

func (e *Evaluator) observe(res *models.EvaluationResult, source string) {
	backend := string(res.Metadata.Backend)
	if backend == "" {
		backend = "none"
	}
	if e.metrics != nil {
		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
			e.metrics.RecordError(string(res.Err.Kind))
		} else {
			e.metrics.RecordCandidates(backend, len(res.Predictions))
		}
		e.metrics.RecordEvaluation(backend, outcome)
		e.metrics.RecordLatency("evaluate", float64(res.Metadata.ProcessingTimeMs)/1000)
	}

	if res.Err != nil {
		e.log.Info("evaluation failed",
			logger.String("request_id", res.Metadata.RequestID),
			logger.String("code", string(res.Err.Kind)),
			logger.String("detail", res.Err.Message),
			logger.Int("candidates", res.Metadata.CandidateCount),
			logger.Int64("processing_ms", res.Metadata.ProcessingTimeMs),
		)
	} else {
		e.log.Info("evaluation completed",
			logger.String("request_id", res.Metadata.RequestID),
			logger.String("backend", backend),
			logger.Int("candidates", res.Metadata.CandidateCount),
			logger.Int("flagged", res.Flagged()),
			logger.Int64("processing_ms", res.Metadata.ProcessingTimeMs),
		)
	}

	if e.history != nil {
		rec := models.NewEvaluationRecord(res, source)
		e.history.Submit(&rec)
	}
}

// Health reports resource presence and static limits. It never fails.
func (e *Evaluator) Health(_ context.Context) models.HealthReport {
	limits := e.cfg.Limits
	if e.cfg.Backend == models.BackendHeuristic {
		limits = e.cfg.HeuristicLimits
	}
	report := models.HealthReport{
		Status:                "ok",
		Message:               "Exoplanet prediction service is running",
		Backend:               e.cfg.Backend,
		Model:                 models.ResourceStatus{Path: e.cfg.ModelPath, Present: e.present(e.cfg.ModelPath)},
		Worker:                models.ResourceStatus{Path: e.cfg.ScriptPath, Present: e.present(e.cfg.ScriptPath)},
		MaxCandidates:         limits.MaxCandidates,
		MinPointsPerCandidate: limits.MinPoints,
		TimeoutMs:             e.cfg.Timeout.Milliseconds(),
		Timestamp:             e.now().UTC(),
	}
	if e.gateway != nil {
		report.WorkerSlots = e.gateway.Slots()
	}

	switch e.cfg.Backend {
	case models.BackendHeuristic:
		report.Message = "Exoplanet prediction service is running (heuristic classifier)"
	case models.BackendModel:
		if missing := e.checkResources(); missing != nil {
			report.Status = "degraded"
			report.Message = missing.Message
		}
	default:
		if missing := e.checkResources(); missing != nil {
			report.Status = "degraded"
			report.Message = "model unavailable, using heuristic classifier: " + missing.Message
		}
	}
	return report
}

var _ service.Evaluator = (*Evaluator)(nil)
