package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ExoScan/internal/domain/models"
	"ExoScan/internal/domain/service"
	"ExoScan/pkg/cache"
	"ExoScan/pkg/logger"
	"ExoScan/pkg/queue"
)

// EvaluateJobType is the queue message type of an asynchronous evaluation.
const EvaluateJobType = "evaluate_batch"

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

type EvaluatePayload struct {
	JobID  string      `json:"job_id"`
	Source string      `json:"source"`
	Data   interface{} `json:"data"`
}

// JobService submits evaluations to the queue and reads their state back
// from the cache.
type JobService struct {
	queue     queue.Publisher
	cache     cache.Service
	resultTTL time.Duration
	now       func() time.Time
}

func NewJobService(q queue.Publisher, c cache.Service, resultTTL time.Duration) *JobService {
	return &JobService{queue: q, cache: c, resultTTL: resultTTL, now: time.Now}
}

func jobKey(id string) string { return cache.GenerateKey("job", id) }

// Submit stores a queued job and enqueues it.
func (s *JobService) Submit(ctx context.Context, data interface{}, source string) (*models.Job, error) {
	if source == "" {
		source = defaultSource
	}
	now := s.now().UTC()
	job := &models.Job{
		ID:          uuid.NewString(),
		State:       models.JobQueued,
		Source:      source,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.cache.Set(ctx, jobKey(job.ID), job, s.resultTTL); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, EvaluateJobType, EvaluatePayload{JobID: job.ID, Source: source, Data: data}); err != nil {
		_ = s.cache.Delete(ctx, jobKey(job.ID))
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := cache.GetTyped[models.Job](ctx, s.cache, jobKey(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return &job, nil
}

// EvaluateJob runs queued evaluations. A job id is processed by one worker
// at a time; evaluation failures are stored on the job and not retried.
type EvaluateJob struct {
	evaluator service.Evaluator
	cache     cache.Service
	resultTTL time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewEvaluateJob(evaluator service.Evaluator, c cache.Service, resultTTL time.Duration, log *logger.Logger) *EvaluateJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &EvaluateJob{evaluator: evaluator, cache: c, resultTTL: resultTTL, log: log, now: time.Now}
}

func (j *EvaluateJob) Name() string { return "evaluate-job" }

func (j *EvaluateJob) Type() string { return EvaluateJobType }

func (j *EvaluateJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[EvaluatePayload](payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.JobID == "" {
		return fmt.Errorf("payload has no job id")
	}

	lockKey := cache.GenerateKeyWithParams("job", p.JobID, "lock")
	ok, err := j.cache.TryLock(ctx, lockKey, j.resultTTL)
	if err != nil {
		return fmt.Errorf("lock job: %w", err)
	}
	if !ok {
		j.log.Debug("job already claimed", logger.String("job_id", p.JobID))
		return nil
	}
	defer func() { _ = j.cache.Unlock(context.WithoutCancel(ctx), lockKey) }()

	job, err := cache.GetTyped[models.Job](ctx, j.cache, jobKey(p.JobID))
	if err != nil {
		job = models.Job{ID: p.JobID, Source: p.Source, SubmittedAt: j.now().UTC()}
	}
	if job.State == models.JobSucceeded || job.State == models.JobFailed {
		return nil
	}

	job.State = models.JobRunning
	job.UpdatedAt = j.now().UTC()
	if err := j.cache.Set(ctx, jobKey(job.ID), job, j.resultTTL); err != nil {
		return fmt.Errorf("store job: %w", err)
	}

	res := j.evaluator.Evaluate(ctx, p.Data, p.Source)
	job.Complete(res, j.now().UTC())
	if err := j.cache.Set(ctx, jobKey(job.ID), job, j.resultTTL); err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	j.log.Info("job finished",
		logger.String("job_id", job.ID),
		logger.String("state", string(job.State)),
		logger.String("request_id", res.Metadata.RequestID),
	)
	return nil
}

var _ queue.Job = (*EvaluateJob)(nil)
