package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"ExoScan/internal/domain/models"
	"ExoScan/internal/domain/repository"
	"ExoScan/internal/domain/service"
	"ExoScan/internal/handler/api"
	"ExoScan/internal/handler/ws"
	mid "ExoScan/internal/middleware"
	internalrepo "ExoScan/internal/repository"
	"ExoScan/internal/service/ratelimit"
	"ExoScan/internal/services/heuristic"
	"ExoScan/internal/services/inference"
	"ExoScan/internal/services/validation"
	"ExoScan/internal/usecase"
	"ExoScan/pkg/cache"
	pkgch "ExoScan/pkg/clickhouse"
	"ExoScan/pkg/config"
	xhttp "ExoScan/pkg/http"
	pkgkafka "ExoScan/pkg/kafka"
	"ExoScan/pkg/logger"
	"ExoScan/pkg/metrics"
	"ExoScan/pkg/queue"
	"ExoScan/pkg/server"
)

// Optional components are returned as nil when their config section is off.
// Interface-typed providers return an untyped nil so that consumers can
// compare against nil.

// ProvideLogger builds the application logger. When log collection is
// enabled the Kafka producer ships aggregated error logs.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collect.Enabled && producer != nil {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collect.Interval,
			CountThreshold: cfg.Logging.Collect.Threshold,
			Topic:          cfg.Logging.Collect.Topic,
			Publisher:      producer,
		})
	}
	return log.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Queue.Enabled || cfg.Cache.Type == "redis" || cfg.Cache.Type == "layered"
}

// ProvideRedisClient dials Redis when the queue or a Redis-backed cache is
// configured. The client is shared between them.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !needsRedis(cfg) {
		return nil, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 4*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideCache selects the result cache implementation.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, error) {
	switch cfg.Cache.Type {
	case "none":
		return nil, nil
	case "redis", "layered":
		if client == nil {
			return nil, fmt.Errorf("cache %q requires redis", cfg.Cache.Type)
		}
		rc := cache.NewRedisCacheWithClient(client, cfg.Redis.Prefix)
		if cfg.Cache.Type == "redis" {
			return rc, nil
		}
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize)), nil
	default:
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}
}

func needsClickHouse(cfg *config.Config) bool {
	return cfg.History.Sink == "clickhouse" || cfg.Kafka.Consumer.Enabled
}

// ProvideClickHouseClient creates a ClickHouse client and makes sure the
// database exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !needsClickHouse(cfg) {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore creates the evaluation table and returns the store.
func ProvideHistoryStore(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) (repository.HistoryStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseHistoryStore(ch.DB(), cfg.ClickHouse.Database+"."+cfg.History.Table, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer when history or logs go to
// Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.History.Sink != "kafka" && !cfg.Logging.Collect.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideHistorySinks selects where evaluation records are written.
func ProvideHistorySinks(cfg *config.Config, store repository.HistoryStore, producer *pkgkafka.Producer) []repository.HistorySink {
	switch cfg.History.Sink {
	case "clickhouse":
		if store != nil {
			return []repository.HistorySink{store}
		}
	case "kafka":
		if producer != nil {
			return []repository.HistorySink{internalrepo.NewKafkaHistoryPublisher(producer, cfg.Kafka.Topic)}
		}
	}
	return nil
}

// ProvideFeedHub creates the WebSocket live feed.
func ProvideFeedHub(cfg *config.Config, log *logger.Logger) *ws.Hub {
	if !cfg.Feed.Enabled {
		return nil
	}
	return ws.New(cfg.Feed.PingInterval, cfg.Feed.SendBuffer, log)
}

// ProvideHistoryPipeline buffers records between the evaluator and the
// sinks.
func ProvideHistoryPipeline(cfg *config.Config, sinks []repository.HistorySink, m repository.Metrics,
	log *logger.Logger, hub *ws.Hub) *mid.HistoryPipeline {
	opts := []mid.PipelineOption{
		mid.WithBufferSize(cfg.History.BufferSize),
		mid.WithBatchSize(cfg.History.BatchSize),
		mid.WithFlushInterval(cfg.History.FlushInterval),
		mid.WithRetry(3, 200*time.Millisecond),
	}
	if hub != nil {
		opts = append(opts, mid.WithBroadcaster(hub))
	}
	return mid.NewHistoryPipeline(sinks, m, log, opts...)
}

// ProvideGateway returns the worker gateway, or nil for the heuristic
// backend.
func ProvideGateway(cfg *config.Config, log *logger.Logger, m repository.Metrics) service.InferenceGateway {
	if models.Backend(cfg.Evaluator.Backend) == models.BackendHeuristic {
		return nil
	}
	return inference.NewGateway(cfg.Inference, log, m)
}

// ProvideClassifier creates the statistical classifier.
func ProvideClassifier(cfg *config.Config) service.CandidateClassifier {
	seed := cfg.Evaluator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return heuristic.New(cfg.Heuristic, seed)
}

// ProvideEvaluator wires the request orchestrator.
func ProvideEvaluator(
	cfg *config.Config,
	gateway service.InferenceGateway,
	classifier service.CandidateClassifier,
	c cache.Service,
	pipeline *mid.HistoryPipeline,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Evaluator {
	ecfg := usecase.EvaluatorConfig{
		Backend: models.Backend(cfg.Evaluator.Backend),
		Limits: validation.Limits{
			MaxCandidates: cfg.Evaluator.MaxCandidates,
			MinPoints:     cfg.Evaluator.MinPoints,
		},
		HeuristicLimits: validation.Limits{
			MaxCandidates: cfg.Evaluator.HeuristicMaxCandidates,
			MinPoints:     cfg.Evaluator.HeuristicMinPoints,
		},
		ModelPath:      cfg.Inference.ResolvedModelPath(),
		ScriptPath:     cfg.Inference.ResolvedScriptPath(),
		Timeout:        cfg.Inference.Timeout,
		ResultCacheTTL: cfg.Evaluator.ResultCacheTTL,
	}
	opts := []usecase.EvaluatorOption{usecase.WithHistory(pipeline)}
	if c != nil {
		opts = append(opts, usecase.WithResultCache(c))
	}
	return usecase.NewEvaluator(ecfg, gateway, classifier, m, log, opts...)
}

// ProvideQueue creates the Redis job queue.
func ProvideQueue(cfg *config.Config, client *redis.Client, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	return queue.NewRedisQueue(log, queue.QueueConfig{
		Workers:     cfg.Queue.Workers,
		RetryLimit:  cfg.Queue.RetryLimit,
		RetryDelay:  cfg.Queue.RetryDelay,
		PollTimeout: 2 * time.Second,
	}, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvideJobService exposes job submission to the HTTP layer.
func ProvideJobService(cfg *config.Config, q *queue.RedisQueue, c cache.Service) *usecase.JobService {
	if q == nil || c == nil {
		return nil
	}
	return usecase.NewJobService(q, c, cfg.Queue.ResultTTL)
}

// ProvideEvaluateJob creates the queue worker for asynchronous evaluations.
func ProvideEvaluateJob(cfg *config.Config, q *queue.RedisQueue, evaluator *usecase.Evaluator,
	c cache.Service, log *logger.Logger) *usecase.EvaluateJob {
	if q == nil || c == nil {
		return nil
	}
	return usecase.NewEvaluateJob(evaluator, c, cfg.Queue.ResultTTL, log)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		After: func(_ context.Context, km kafka.Message, err error) {
			if err != nil {
				log.Warn("history message failed",
					logger.String("request_id", string(km.Key)),
					logger.String("source", pkgkafka.Header(km, "source")),
					logger.Error(err),
				)
			}
		},
	})
	return consumer, nil
}

// ProvideHistoryIngestHandler stores records consumed from the history
// topic.
func ProvideHistoryIngestHandler(cfg *config.Config, store repository.HistoryStore, m repository.Metrics) *usecase.HistoryIngestHandler {
	if !cfg.Kafka.Consumer.Enabled || store == nil {
		return nil
	}
	return usecase.NewHistoryIngestHandler(cfg.Kafka.Topic, store, m)
}

// ProvideRateLimiter creates the per-client limiter for the predict routes.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
}

// ProvidePredictHandler creates the REST handler.
func ProvidePredictHandler(
	log *logger.Logger,
	evaluator *usecase.Evaluator,
	jobs *usecase.JobService,
	store repository.HistoryStore,
	limiter *ratelimit.Limiter,
) *api.PredictHandler {
	var opts []api.PredictHandlerOption
	if jobs != nil {
		opts = append(opts, api.WithJobs(jobs))
	}
	if store != nil {
		opts = append(opts, api.WithHistoryStore(store))
	}
	if limiter != nil {
		opts = append(opts, api.WithRateLimiter(limiter))
	}
	return api.NewPredictHandler(log, evaluator, opts...)
}

// ProvideHTTPServer builds the Echo server with every enabled handler.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, predict *api.PredictHandler, hub *ws.Hub) *xhttp.Server {
	handlers := []xhttp.Handler{predict}
	if hub != nil {
		handlers = append(handlers, hub)
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts = append(opts, xhttp.WithMetricsPath(metricsPath))
	return xhttp.NewServer(log, handlers, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	srv *xhttp.Server,
	pipeline *mid.HistoryPipeline,
	hub *ws.Hub,
	q *queue.RedisQueue,
	job *usecase.EvaluateJob,
	consumer *pkgkafka.Consumer,
	ingest *usecase.HistoryIngestHandler,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
	redisClient *redis.Client,
) *server.App {
	app := server.New(cfg, log, srv, pipeline)
	if hub != nil {
		app.SetFeed(hub)
	}
	if q != nil && job != nil {
		q.RegisterJob(job)
		app.SetQueue(q)
	}
	if consumer != nil && ingest != nil {
		app.SetConsumer(consumer, ingest)
	}
	if producer != nil {
		app.AddCloser("kafka producer", producer)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch)
	}
	if c != nil {
		app.AddCloser("cache", c)
	}
	if redisClient != nil {
		app.AddCloser("redis", redisClient)
	}
	return app
}
