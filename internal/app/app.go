package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dhoini/billing-sync/internal/config"
	"github.com/Dhoini/billing-sync/internal/http/handlers"
	"github.com/Dhoini/billing-sync/internal/http/routes"
	"github.com/Dhoini/billing-sync/internal/kafka"
	"github.com/Dhoini/billing-sync/internal/kafka/producer"
	"github.com/Dhoini/billing-sync/internal/metrics"
	"github.com/Dhoini/billing-sync/internal/middleware"
	"github.com/Dhoini/billing-sync/internal/repository"
	"github.com/Dhoini/billing-sync/internal/repository/postgres"
	"github.com/Dhoini/billing-sync/internal/service"
	"github.com/Dhoini/billing-sync/internal/stripe"
	"github.com/Dhoini/billing-sync/internal/webhook"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

const systemMetricsInterval = 15 * time.Second

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.ReconcilerMetrics
	Store    repository.RecordStore
	Router   *gin.Engine

	server        *Server
	systemMetrics *metrics.SystemMetrics
	consumer      *kafka.EventConsumer
	closers       []closer
}

// Overrides позволяет подменить внешние зависимости (используется в тестах)
type Overrides struct {
	Stripe stripe.Client
	Store  repository.RecordStore
}

// New создает и связывает все компоненты. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, overrides ...Overrides) (a *App, err error) {
	var ov Overrides
	if len(overrides) > 0 {
		ov = overrides[0]
	}

	a = &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	// return nil, err обнуляет a до выполнения defer
	built := a
	defer func() {
		if err != nil {
			built.closeAll(context.Background())
		}
	}()

	a.Metrics = metrics.NewReconcilerMetrics(a.Registry)
	a.systemMetrics = metrics.NewSystemMetrics(a.Registry, log)

	store := ov.Store
	if store == nil {
		if store, err = a.buildStore(ctx); err != nil {
			return nil, err
		}
	}
	a.Store = store

	client := ov.Stripe
	if client == nil {
		client = stripe.NewClient(stripe.Config{
			APIKey:          cfg.Stripe.APIKey,
			MaxRetryElapsed: cfg.Stripe.MaxRetryElapsed,
		}, log, a.Metrics)
	}

	notifier, err := a.buildNotifier()
	if err != nil {
		return nil, err
	}

	resolver, err := webhook.NewProductResolver(cfg.Webhook.ProductSource, client)
	if err != nil {
		return nil, err
	}
	dispatcher := webhook.NewDispatcher(
		webhook.NewHandlers(store, resolver, notifier, log.Named("reconciler")),
		a.Metrics,
		log.Named("dispatcher"),
	)

	queue, err := a.buildQueue(ctx, dispatcher)
	if err != nil {
		return nil, err
	}

	billing := handlers.NewBillingHandler(
		service.NewSubscriptionService(store, client, log.Named("subscriptions")),
		service.NewInvoiceService(store, client, a.Metrics, log.Named("invoices")),
		log,
	)
	deps := routes.Deps{
		Billing:  billing,
		Webhook:  handlers.NewWebhookHandler(webhook.NewVerifier(cfg.Webhook.VerifySignature, cfg.Stripe.WebhookSecret), queue, a.Metrics, log.Named("webhook")),
		Registry: a.Registry,
		BasePath: cfg.HTTP.BasePath,
	}
	if cfg.Auth.JWTSecret != "" {
		auth := middleware.NewJWTMiddleware(log, &middleware.HMACTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)})
		deps.Auth = auth.RequireAuth()
	}

	a.Router = routes.NewRouter(deps, log.Named("http"))
	a.server = NewServer(a.Router, ServerOptions{
		Port:         cfg.App.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, log)

	return a, nil
}

func (a *App) buildStore(ctx context.Context) (repository.RecordStore, error) {
	cfg := a.Config

	var store repository.RecordStore
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := postgres.NewConnection(ctx, postgres.PoolConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.addCloser("postgres pool", func(context.Context) error {
			pool.Close()
			return nil
		})

		db := postgres.OpenDB(pool)
		a.addCloser("postgres db", func(context.Context) error { return db.Close() })

		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		store = postgres.NewRecordStore(db, a.Logger.Named("store"))
	default:
		a.Logger.Warnw("Using in-memory record store, data is lost on restart")
		store = repository.NewMemoryRecordStore()
	}

	if !cfg.Redis.Enabled {
		return store, nil
	}
	cache, err := repository.NewRedisCache(ctx, repository.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.addCloser("redis", func(context.Context) error { return cache.Close() })
	return repository.NewCachedRecordStore(store, cache, cfg.Redis.TTL, a.Logger.Named("cache")), nil
}

func (a *App) kafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:     a.Config.Kafka.Brokers,
		EventsTopic: a.Config.Kafka.EventsTopic,
		GroupID:     a.Config.Kafka.GroupID,
		NotifyTopic: a.Config.Kafka.NotifyTopic,
	}.WithDefaults()
}

// buildNotifier возвращает nil-интерфейс, если публикация изменений выключена
func (a *App) buildNotifier() (webhook.RecordNotifier, error) {
	if !a.Config.Kafka.Notify {
		return nil, nil
	}
	kcfg := a.kafkaConfig()
	p, err := producer.Dial(kcfg.Brokers, kcfg.NotifyTopic, kafka.NewSaramaProducerConfig(), a.Logger)
	if err != nil {
		return nil, err
	}
	a.addCloser("record change producer", func(context.Context) error { return p.Close() })
	return p, nil
}

func (a *App) buildQueue(ctx context.Context, dispatcher *webhook.Dispatcher) (webhook.Queue, error) {
	cfg := a.Config
	switch cfg.Queue.Driver {
	case config.QueueSync:
		a.Logger.Infow("Webhook events are processed inline")
		return webhook.NewSyncQueue(dispatcher), nil

	case config.QueueKafka:
		kcfg := a.kafkaConfig()
		if err := kafka.EnsureTopics(ctx, kcfg.Brokers, kafka.RequiredTopics(kcfg), a.Logger); err != nil {
			a.Logger.Warnw("Failed to ensure Kafka topics, continuing", "error", err)
		}

		writer, err := kafka.NewEventWriter(kcfg, a.Logger)
		if err != nil {
			return nil, err
		}
		a.addCloser("kafka event writer", func(context.Context) error { return writer.Close() })

		consumer, err := kafka.NewEventConsumer(kcfg, dispatcher, a.Logger)
		if err != nil {
			return nil, err
		}
		a.consumer = consumer
		a.addCloser("kafka event consumer", func(context.Context) error { return consumer.Close() })
		return writer, nil

	default:
		q := webhook.NewChannelQueue(dispatcher, webhook.ChannelQueueOptions{
			Workers: cfg.Webhook.Workers,
			Size:    cfg.Webhook.QueueSize,
		}, a.Metrics, a.Logger.Named("queue"))
		q.Start()
		a.addCloser("event queue", q.Close)
		return q, nil
	}
}

func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run запускает HTTP сервер и фоновые задачи, блокируется до отмены ctx, затем выполняет Shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.systemMetrics.Start(runCtx, systemMetricsInterval)

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.server.Start()
	}()
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Infow("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			a.Logger.Errorw("Service component failed", "error", runErr)
		}
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown останавливает HTTP сервер, затем закрывает очередь и ресурсы в обратном порядке
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	a.systemMetrics.Stop()
	errs = append(errs, a.closeAll(ctx))
	return errors.Join(errs...)
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Errorw("Failed to close component", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		a.Logger.Debugw("Component closed", "component", c.name)
	}
	a.closers = nil
	return errors.Join(errs...)
}
