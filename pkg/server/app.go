package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"AirView/internal/service/ratelimit"
	"AirView/internal/usecase"
	"AirView/pkg/config"
	xhttp "AirView/pkg/http"
	pkgkafka "AirView/pkg/kafka"
	applogger "AirView/pkg/logger"
	"AirView/pkg/queue"
)

// App owns the long-running parts of the service: the HTTP server plus the
// optional Kafka consumer, Redis queue, retention job and rate limiter
// pruning. Run blocks until a signal arrives. Shared clients are closed by
// whoever built them.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	http      *xhttp.Server
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	retention *usecase.RetentionJob
	queue     *queue.RedisQueue
	limiter   *ratelimit.Limiter

	wg sync.WaitGroup
}

// Components groups what App runs. Nil members are skipped.
type Components struct {
	HTTP      *xhttp.Server
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	Retention *usecase.RetentionJob
	Queue     *queue.RedisQueue
	Limiter   *ratelimit.Limiter
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		http:      c.HTTP,
		consumer:  c.Consumer,
		kh:        c.Handler,
		retention: c.Retention,
		queue:     c.Queue,
		limiter:   c.Limiter,
	}
}

// Run starts everything and blocks until SIGINT/SIGTERM or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start launches the components without blocking. Background jobs stop
// when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.l.Error("redis queue start error", applogger.Error(err))
			return err
		}
	}

	if a.retention != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.retention.Run(ctx)
		}()
	}

	if a.limiter != nil {
		rl := a.cfg.Server.RateLimit
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.limiter.Run(ctx, rl.PruneInterval, rl.IdleTimeout)
		}()
	}

	if err := a.http.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	a.l.Info("airview started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// Shutdown stops intake first (HTTP, consumer, queue), then waits for the
// background jobs.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down")

	if err := a.http.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("redis queue stop error", applogger.Error(err))
		}
	}

	a.wg.Wait()

	// Detach before the injector cleanup closes the producer the log
	// collector publishes through.
	a.l.RemoveCollector()

	a.l.Info("shutdown complete")
	return nil
}
