// Package inference runs the trained model as an external worker process,
// one process per batch.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"ExoScan/internal/domain/models"
	"ExoScan/internal/domain/repository"
	"ExoScan/pkg/logger"
)

// ModelPathEnv carries the model artifact location to the worker.
const ModelPathEnv = "EXOSCAN_MODEL_PATH"

type Config struct {
	Interpreter    string        `yaml:"interpreter" default:"python3"`
	Args           []string      `yaml:"args"`
	ScriptPath     string        `yaml:"script_path" default:"predict_service.py"`
	ModelPath      string        `yaml:"model_path" default:"exoplanet_model.h5"`
	WorkDir        string        `yaml:"work_dir"`
	Timeout        time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	MaxConcurrent  int           `yaml:"max_concurrent" default:"4" validate:"gte=1"`
	QueueTimeout   time.Duration `yaml:"queue_timeout" default:"5s" validate:"gte=0"`
	MaxOutputBytes int           `yaml:"max_output_bytes" default:"4194304" validate:"gte=0"`
}

// ResolvedScriptPath is the worker entry point as seen from WorkDir.
func (c Config) ResolvedScriptPath() string { return c.resolve(c.ScriptPath) }

// ResolvedModelPath is the model artifact as seen from WorkDir.
func (c Config) ResolvedModelPath() string { return c.resolve(c.ModelPath) }

func (c Config) resolve(p string) string {
	if p == "" || c.WorkDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// Gateway launches workers under a concurrency bound and maps every failure
// onto an EvaluationError.
type Gateway struct {
	cfg     Config
	sem     *semaphore.Weighted
	log     *logger.Logger
	metrics repository.Metrics
}

func NewGateway(cfg Config, log *logger.Logger, metrics repository.Metrics) *Gateway {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Gateway{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:     log,
		metrics: metrics,
	}
}

// Slots is the maximum number of concurrent workers.
func (g *Gateway) Slots() int { return g.cfg.MaxConcurrent }

// Config returns the gateway configuration.
func (g *Gateway) Config() Config { return g.cfg }

// Predict runs one worker for the batch and returns one verdict per row.
func (g *Gateway) Predict(ctx context.Context, batch models.CandidateBatch) ([]models.Verdict, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, models.NewEvaluationError(models.ErrInternal, "failed to encode batch").WithError(err)
	}

	if err := g.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	if g.metrics != nil {
		g.metrics.WorkerStarted()
		defer g.metrics.WorkerFinished()
	}

	start := time.Now()
	verdicts, err := g.run(ctx, payload, len(batch))
	if g.log != nil {
		if err != nil {
			g.log.Warn("inference worker failed",
				logger.String("kind", string(models.KindOf(err))),
				logger.Int("candidates", len(batch)),
				logger.Duration("elapsed_ms", time.Since(start)),
				logger.Error(err),
			)
		} else {
			g.log.Debug("inference worker finished",
				logger.Int("candidates", len(batch)),
				logger.Duration("elapsed_ms", time.Since(start)),
			)
		}
	}
	return verdicts, err
}

func (g *Gateway) acquire(ctx context.Context) error {
	if g.sem.TryAcquire(1) {
		return nil
	}
	if g.cfg.QueueTimeout <= 0 {
		return models.NewEvaluationError(models.ErrTimeout, "timed out waiting for a worker slot")
	}
	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.QueueTimeout)
	defer cancel()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return contextError(ctx)
		}
		return models.NewEvaluationError(models.ErrTimeout, "timed out waiting for a worker slot")
	}
	return nil
}

func (g *Gateway) run(ctx context.Context, payload []byte, want int) ([]models.Verdict, error) {
	args := append(append([]string{}, g.cfg.Args...), g.cfg.ScriptPath, string(payload))
	cmd := exec.Command(g.cfg.Interpreter, args...)
	cmd.Dir = g.cfg.WorkDir
	cmd.Env = append(os.Environ(), ModelPathEnv+"="+g.cfg.ModelPath)
	isolate(cmd)

	stdout := newCappedBuffer(g.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(g.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Bounds Wait if a grandchild keeps the output pipes open after a kill.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, models.NewEvaluationError(models.ErrSpawnFailure,
			fmt.Sprintf("failed to start worker: %v", err)).WithError(err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(g.cfg.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return g.finish(err, stdout, stderr, want)
	case <-timer.C:
		g.kill(cmd, done)
		return nil, models.NewEvaluationError(models.ErrTimeout,
			fmt.Sprintf("worker exceeded %s timeout", g.cfg.Timeout))
	case <-ctx.Done():
		g.kill(cmd, done)
		return nil, contextError(ctx)
	}
}

// kill terminates the worker's process group and reaps it.
func (g *Gateway) kill(cmd *exec.Cmd, done <-chan error) {
	if err := terminate(cmd); err != nil && g.log != nil {
		g.log.Warn("failed to kill inference worker", logger.Error(err))
	}
	<-done
}

func (g *Gateway) finish(waitErr error, stdout, stderr *cappedBuffer, want int) ([]models.Verdict, error) {
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("worker exited with status %d", exitErr.ExitCode())
			}
			return nil, models.NewEvaluationError(models.ErrExecutionFailure, msg).WithError(waitErr)
		}
		// exec.ErrWaitDelay after a clean exit still leaves complete output.
		if !errors.Is(waitErr, exec.ErrWaitDelay) {
			return nil, models.NewEvaluationError(models.ErrExecutionFailure, waitErr.Error()).WithError(waitErr)
		}
	}
	if stdout.Overflowed() {
		return nil, models.NewEvaluationError(models.ErrMalformedOutput,
			fmt.Sprintf("worker output exceeded %d bytes", g.cfg.MaxOutputBytes))
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" && g.log != nil {
		g.log.Debug("inference worker stderr", logger.String("stderr", msg))
	}
	return parseOutput(stdout.Bytes(), want)
}

func contextError(ctx context.Context) *models.EvaluationError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewEvaluationError(models.ErrTimeout, "request deadline exceeded").WithError(ctx.Err())
	}
	return models.NewEvaluationError(models.ErrInternal, "request cancelled").WithError(ctx.Err())
}
