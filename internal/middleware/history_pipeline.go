package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ExoScan/internal/domain/models"
	domrepo "ExoScan/internal/domain/repository"
	"ExoScan/pkg/logger"
)

// Broadcaster fans records out to live subscribers. It must not block.
type Broadcaster interface {
	Broadcast(rec *models.EvaluationRecord)
}

// HistoryPipeline sits between the evaluator and the history sinks. Records
// are broadcast at once and written to the sinks in batches from a bounded
// buffer, so a slow or failing sink never delays a response.
type HistoryPipeline struct {
	sinks       []domrepo.HistorySink
	broadcaster Broadcaster
	metrics     domrepo.Metrics
	log         *logger.Logger

	bufSize       int
	batchSize     int
	flushInterval time.Duration
	maxAttempts   int
	backoff       time.Duration

	bufCh   chan *models.EvaluationRecord
	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool
}

type PipelineOption func(*HistoryPipeline)

func WithBufferSize(n int) PipelineOption {
	return func(p *HistoryPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithBatchSize(n int) PipelineOption {
	return func(p *HistoryPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *HistoryPipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithRetry sets how often a failed batch write is attempted per sink and
// the initial backoff, which doubles per attempt (with jitter) up to two
// seconds.
func WithRetry(attempts int, initial time.Duration) PipelineOption {
	return func(p *HistoryPipeline) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
		if initial > 0 {
			p.backoff = initial
		}
	}
}

func WithBroadcaster(b Broadcaster) PipelineOption {
	return func(p *HistoryPipeline) { p.broadcaster = b }
}

// NewHistoryPipeline creates a pipeline writing to sinks. Nil sinks are
// ignored and metrics may be nil.
func NewHistoryPipeline(sinks []domrepo.HistorySink, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *HistoryPipeline {
	p := &HistoryPipeline{
		metrics:       metrics,
		log:           log,
		bufSize:       1024,
		batchSize:     100,
		flushInterval: 2 * time.Second,
		maxAttempts:   3,
		backoff:       50 * time.Millisecond,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	if p.log == nil {
		p.log = logger.NewNop()
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.EvaluationRecord, p.bufSize)
	return p
}

// Submit hands a record to the pipeline without blocking. It reports
// whether the record was queued for the sinks.
func (p *HistoryPipeline) Submit(rec *models.EvaluationRecord) bool {
	if rec == nil {
		return false
	}
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(rec)
	}
	if len(p.sinks) == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.bufCh <- rec:
		return true
	default:
		p.recordError("history_buffer_full")
		p.log.Warn("history buffer full, dropping record", logger.String("request_id", rec.RequestID))
		return false
	}
}

// Start launches the flush loop. It is a no-op when there are no sinks.
func (p *HistoryPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped || len(p.sinks) == 0 {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.loop(context.WithoutCancel(ctx))
}

func (p *HistoryPipeline) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.EvaluationRecord, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.write(ctx, batch)
		batch = make([]*models.EvaluationRecord, 0, p.batchSize)
	}

	for {
		select {
		case rec := <-p.bufCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.stopCh:
			for {
				select {
				case rec := <-p.bufCh:
					batch = append(batch, rec)
					if len(batch) >= p.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *HistoryPipeline) write(ctx context.Context, batch []*models.EvaluationRecord) {
	start := time.Now()
	for _, sink := range p.sinks {
		attempts := 0
		op := func() error {
			attempts++
			return sink.RecordBatch(ctx, batch)
		}
		if err := backoff.Retry(op, p.retryPolicy(ctx)); err != nil {
			p.recordError("history_write")
			p.log.Error("history batch dropped",
				logger.Int("records", len(batch)),
				logger.Int("attempts", attempts),
				logger.Error(err),
			)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("history_flush", time.Since(start).Seconds())
	}
}

// Stop flushes what is buffered and waits for the loop to exit or ctx to end.
func (p *HistoryPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}
	close(p.stopCh)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *HistoryPipeline) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.backoff
	eb.Multiplier = 2
	eb.MaxInterval = 2 * time.Second
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.maxAttempts-1)), ctx)
}

func (p *HistoryPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
