package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ExoScan/internal/handler/ws"
	mid "ExoScan/internal/middleware"
	"ExoScan/pkg/config"
	xhttp "ExoScan/pkg/http"
	pkgkafka "ExoScan/pkg/kafka"
	"ExoScan/pkg/logger"
	"ExoScan/pkg/queue"
)

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *xhttp.Server
	pipeline   *mid.HistoryPipeline

	feed     *ws.Hub
	queue    *queue.RedisQueue
	consumer *pkgkafka.Consumer
	kh       pkgkafka.MessageHandler
	closers  []namedCloser

	signals    chan os.Signal
	feedCancel context.CancelFunc
}

// New creates a new App instance with its required dependencies. Optional
// components are attached with the setters before Run.
func New(cfg *config.Config, log *logger.Logger, srv *xhttp.Server, pipeline *mid.HistoryPipeline) *App {
	if log == nil {
		log = logger.NewNop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: srv,
		pipeline:   pipeline,
		signals:    make(chan os.Signal, 1),
	}
}

// SetFeed attaches the live feed hub.
func (a *App) SetFeed(h *ws.Hub) { a.feed = h }

// SetQueue attaches the job queue. Jobs must already be registered.
func (a *App) SetQueue(q *queue.RedisQueue) { a.queue = q }

// SetConsumer attaches a Kafka consumer and the handler for its topic.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// AddCloser registers an infrastructure client to close on shutdown, in
// registration order.
func (a *App) AddCloser(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, c: c})
}

// Run starts the application and blocks until interrupted or the HTTP
// listener fails.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.shutdown(ctx)
		return err
	}

	signal.Notify(a.signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(a.signals)

	var runErr error
	select {
	case sig := <-a.signals:
		a.log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-a.httpServer.Err():
		runErr = fmt.Errorf("http server: %w", err)
	}

	a.shutdown(ctx)
	return runErr
}

func (a *App) start(ctx context.Context) error {
	a.pipeline.Start(ctx)

	if a.feed != nil {
		feedCtx, feedCancel := context.WithCancel(ctx)
		a.feedCancel = feedCancel
		go a.feed.Run(feedCtx)
		a.log.Info("live feed started")
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
		a.log.Info("job queue started", logger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", logger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info("exoscan started",
		logger.String("backend", a.cfg.Evaluator.Backend),
		logger.String("history_sink", a.cfg.History.Sink),
		logger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// shutdown stops intake first, then drains background work, then closes
// infrastructure clients.
func (a *App) shutdown(ctx context.Context) {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
	}

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.log.Warn("job queue stop error", logger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
	}

	if err := a.pipeline.Stop(shutdownCtx); err != nil {
		a.log.Warn("history pipeline stop error", logger.Error(err))
	}

	if a.feedCancel != nil {
		a.feedCancel()
	}

	// The collector publishes through the producer closed below.
	a.log.RemoveCollector()
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", logger.String("component", nc.name), logger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
