// Package app assembles the intake agent from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/maher4real/support-ticket-system/internal/api/http"
	"github.com/maher4real/support-ticket-system/internal/api/http/handlers"
	"github.com/maher4real/support-ticket-system/internal/clock"
	"github.com/maher4real/support-ticket-system/internal/config"
	"github.com/maher4real/support-ticket-system/internal/connectivity"
	"github.com/maher4real/support-ticket-system/internal/events"
	"github.com/maher4real/support-ticket-system/internal/observability"
	"github.com/maher4real/support-ticket-system/internal/persistence"
	"github.com/maher4real/support-ticket-system/internal/queue"
	"github.com/maher4real/support-ticket-system/internal/remote"
	"github.com/maher4real/support-ticket-system/internal/service"
	"github.com/maher4real/support-ticket-system/internal/syncer"
	"github.com/maher4real/support-ticket-system/internal/transport"
	"github.com/maher4real/support-ticket-system/internal/view"
	"github.com/maher4real/support-ticket-system/internal/worker"
)

// notificationFeedSize bounds the activity feed kept in memory.
const notificationFeedSize = 50

// App holds every long-lived component of a running agent.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Clock         clock.Clock
	Dispatcher    events.Dispatcher
	Queue         *queue.Queue
	DeadLetters   *queue.DeadLetters
	API           remote.TicketAPI
	Connectivity  *connectivity.Monitor
	Syncer        *syncer.Synchronizer
	View          *view.Coordinator
	Tickets       *service.TicketService
	Notifications *service.NotificationService
	HTTP          *fiber.App

	closers []func() error
}

// Option configures New.
type Option func(*options)

type options struct {
	clock     clock.Clock
	transport []transport.Option
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTransportOptions appends options to the ticket service client.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transport = append(o.transport, opts...) }
}

// New opens the queue store and wires the components. Close releases
// what New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	logger = observability.OrNop(logger)

	a := &App{Config: cfg, Logger: logger, Clock: o.clock}
	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetrics()
	}

	pending, dead, err := a.openStores(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Dispatcher = events.NewInMemoryDispatcher(logger)
	a.Queue = queue.New(pending,
		queue.WithClock(a.Clock),
		queue.WithLogger(logger.Named("queue")),
		queue.WithMetrics(a.Metrics))
	a.DeadLetters = queue.NewDeadLetters(dead, a.Clock, a.Metrics)

	retry := transport.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Remote.ReadAttempts
	clientOpts := append([]transport.Option{
		transport.WithRetryConfig(retry),
		transport.WithClock(a.Clock),
		transport.WithLogger(logger.Named("transport")),
		transport.WithMetrics(a.Metrics),
	}, o.transport...)
	a.API = remote.NewTicketAPI(transport.NewClient(cfg.Remote.BaseURL, clientOpts...), remote.Timeouts{
		Read:  cfg.Remote.ReadTimeout,
		Write: cfg.Remote.WriteTimeout,
		AI:    cfg.Remote.AITimeout,
	})

	a.Connectivity = connectivity.NewMonitor(a.API, a.Dispatcher, a.Clock, logger.Named("connectivity"))
	a.Syncer = syncer.New(a.Queue, a.API, a.Connectivity,
		syncer.WithDeadLetters(a.DeadLetters),
		syncer.WithPolicy(cfg.Sync.PermanentFailurePolicy),
		syncer.WithDispatcher(a.Dispatcher),
		syncer.WithClock(a.Clock),
		syncer.WithLogger(logger.Named("syncer")),
		syncer.WithMetrics(a.Metrics))
	a.View = view.NewCoordinator(a.API, a.Queue, a.Connectivity,
		view.WithClock(a.Clock),
		view.WithLogger(logger.Named("view")),
		view.WithDispatcher(a.Dispatcher))
	a.closers = append(a.closers, func() error { a.View.Close(); return nil })
	a.Syncer.OnSynced(func(ctx context.Context) {
		if err := a.View.Refresh(ctx); err != nil {
			logger.Debug("refresh after sync failed", zap.Error(err))
		}
	})

	a.Tickets = service.NewTicketService(service.TicketDependencies{
		API:        a.API,
		Queue:      a.Queue,
		Dispatcher: a.Dispatcher,
		Clock:      a.Clock,
		Logger:     logger.Named("tickets"),
	})
	a.Notifications = service.NewNotificationService(a.Dispatcher, logger.Named("notifications"), notificationFeedSize)
	a.Notifications.RegisterHandlers()

	a.HTTP = fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		Immutable:             true,
	})
	httptransport.RegisterMiddlewares(a.HTTP, logger.Named("http"), a.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(a.HTTP, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, a.Queue, a.Connectivity),
		Tickets: handlers.NewTicketsHandler(a.Tickets, a.View, a.Queue),
		Queue:   handlers.NewQueueHandler(a.Queue, a.DeadLetters, a.Syncer, a.Notifications, logger.Named("queue")),
		Metrics: a.Metrics,
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) (queue.Store, queue.Store, error) {
	switch a.Config.Queue.Backend {
	case config.QueueBackendRedis:
		r, err := persistence.OpenRedis(ctx, a.Config.Redis, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, r.Close)
		return queue.NewRedisStore(r.Client, a.Config.Queue.RedisKey, queue.NamespacePending),
			queue.NewRedisStore(r.Client, a.Config.Queue.RedisKey, queue.NamespaceDeadLetter), nil
	case config.QueueBackendSQLite:
		db, err := persistence.OpenSQLite(ctx, a.Config.Queue.SQLitePath, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		return queue.NewSQLiteStore(db.DB, queue.NamespacePending),
			queue.NewSQLiteStore(db.DB, queue.NamespaceDeadLetter), nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", a.Config.Queue.Backend)
	}
}

// StartWorkers runs the connectivity probe, the sync triggers and the
// periodic sync loop until ctx is done. The returned function waits for
// them to stop.
func (a *App) StartWorkers(ctx context.Context) (wait func()) {
	triggers := worker.RegisterSyncTriggers(ctx, a.Dispatcher, a.Syncer, a.View, a.Logger.Named("sync-triggers"))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.Connectivity.Run(ctx, a.Config.Remote.ProbeInterval)
	}()
	go func() {
		defer wg.Done()
		worker.RunSyncLoop(ctx, a.Syncer, a.Clock, a.Config.Sync.Interval, a.Logger.Named("sync-loop"))
	}()
	go func() {
		defer wg.Done()
		if err := a.View.Refresh(ctx); err != nil {
			a.Logger.Debug("initial load failed", zap.Error(err))
		}
	}()
	return func() {
		wg.Wait()
		triggers.Close()
	}
}

// Serve runs the local API and workers until ctx is done, then shuts
// down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wait := a.StartWorkers(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("local api listening", zap.String("addr", a.Config.App.Addr()))
		errCh <- a.HTTP.Listen(a.Config.App.Addr())
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("fiber listen: %w", err)
		}
	}
	cancel()
	if shutdownErr := a.HTTP.ShutdownWithTimeout(5 * time.Second); shutdownErr != nil {
		a.Logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	wait()
	return err
}

// Close releases stores and stops view retries.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
