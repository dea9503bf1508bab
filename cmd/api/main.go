package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/phoenix-backend/api/controllers"
	"github.com/angelmondragon/phoenix-backend/api/routes"
	"github.com/angelmondragon/phoenix-backend/internal/checkout"
	"github.com/angelmondragon/phoenix-backend/internal/cron"
	"github.com/angelmondragon/phoenix-backend/internal/dedup"
	"github.com/angelmondragon/phoenix-backend/internal/invoices"
	"github.com/angelmondragon/phoenix-backend/internal/notifications"
	"github.com/angelmondragon/phoenix-backend/internal/pendingauth"
	"github.com/angelmondragon/phoenix-backend/internal/phoenix"
	"github.com/angelmondragon/phoenix-backend/internal/provisioner"
	"github.com/angelmondragon/phoenix-backend/internal/storage"
	"github.com/angelmondragon/phoenix-backend/internal/subscriptions"
	"github.com/angelmondragon/phoenix-backend/internal/users"
	stripewebhook "github.com/angelmondragon/phoenix-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/db"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
	"github.com/angelmondragon/phoenix-backend/pkg/metrics"
	"github.com/angelmondragon/phoenix-backend/pkg/migrate"
	"github.com/angelmondragon/phoenix-backend/pkg/pubsub"
	"github.com/angelmondragon/phoenix-backend/pkg/redis"
	pstripe "github.com/angelmondragon/phoenix-backend/pkg/stripe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "phoenix-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else if cfg.Dedup.UsesRedis() {
		return errors.New("redis dedup backend selected but no redis endpoint configured")
	}

	stripeClient, err := pstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	projectClient, err := provisioner.NewClient(cfg.Provisioner)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)
	sweepMetrics := metrics.NewCronJobMetrics(registry)

	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	invoicesRepo := invoices.NewRepository(conn)
	subscriptionsRepo := subscriptions.NewRepository(conn)
	storageRepo := storage.NewRepository(conn)

	gateway, closeGateway, err := notificationGateway(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer closeGateway()
	notifier := notifications.NewNotifier(gateway, usersRepo, cfg.Notifications.StaffRoles, logg)

	dedupCache, dedupStore, err := newDedupStore(cfg, redisClient)
	if err != nil {
		return err
	}
	guard, err := dedup.NewGuard(dedupStore)
	if err != nil {
		return err
	}

	pendingStore, err := pendingAuthStore(cfg, redisClient)
	if err != nil {
		return err
	}
	issuer := pendingauth.NewIssuer(cfg.JWT, usersRepo)
	exchange, err := pendingauth.NewExchange(pendingauth.ExchangeParams{
		Store:    pendingStore,
		Invoices: invoicesRepo,
		Users:    usersRepo,
		Issuer:   issuer,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	engine, err := phoenix.NewEngine(phoenix.EngineParams{
		TransactionRunner: dbClient,
		Invoices:          invoicesRepo,
		Subscriptions:     subscriptionsRepo,
		Storage:           storageRepo,
		Users:             usersRepo,
		Issuer:            issuer,
		PendingAuth:       exchange,
		Stripe:            stripeClient,
		Provisioner:       projectClient,
		Notifier:          notifier,
		Metrics:           webhookMetrics,
		Password:          cfg.Password,
		BaseStorageBytes:  cfg.Storage.BaseAllotmentBytes,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Engine:            engine,
		Invoices:          invoicesRepo,
		Subscriptions:     subscriptionsRepo,
		Storage:           storageRepo,
		Users:             usersRepo,
		Notifier:          notifier,
		Metrics:           webhookMetrics,
		TransactionRunner: dbClient,
		BaseStorageBytes:  cfg.Storage.BaseAllotmentBytes,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	verifier, err := stripewebhook.NewVerifier(stripeClient.SigningSecret(), 0)
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Stripe:   stripeClient,
		Invoices: invoicesRepo,
		Users:    usersRepo,
		Password: cfg.Password,
		Currency: cfg.Stripe.Currency,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	sweepers, err := sweepServices(cfg, logg, sweepMetrics, dedupCache, pendingStore)
	if err != nil {
		return err
	}

	pingers := map[string]controllers.Pinger{"database": dbClient}
	if redisClient != nil {
		pingers["redis"] = redisClient
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Gatherer: registry,
			Pingers:  pingers,
			Verifier: verifier,
			Webhooks: webhookService,
			Guard:    guard,
			Metrics:  webhookMetrics,
			Exchange: exchange,
			Checkout: checkoutService,
		}),
	}

	for _, sweeper := range sweepers {
		go func(s *cron.Service) {
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "sweeper exited", err)
			}
		}(sweeper)
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr}), "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// notificationGateway publishes to Pub/Sub when a project and topic are
// configured, and logs notifications otherwise.
func notificationGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Gateway, func(), error) {
	if cfg.GCP.ProjectID == "" || cfg.PubSub.NotificationTopic == "" {
		logg.Warn(ctx, "pubsub not configured, notifications are logged only")
		return notifications.NewLogGateway(logg), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, err
	}
	gateway, err := notifications.NewPubSubGateway(client.NotificationPublisher())
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return gateway, func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}, nil
}

// newDedupStore returns the in-process cache as well when it is the active
// store, so the purge sweeper can be scheduled.
func newDedupStore(cfg *config.Config, redisClient *redis.Client) (*dedup.Cache, dedup.Store, error) {
	if cfg.Dedup.UsesRedis() {
		store, err := dedup.NewRedisStore(redisClient, cfg.Dedup.TTL)
		return nil, store, err
	}
	cache := dedup.NewCache(dedup.CacheOptions{TTL: cfg.Dedup.TTL, MaxEntries: cfg.Dedup.MaxEntries})
	return cache, cache, nil
}

func pendingAuthStore(cfg *config.Config, redisClient *redis.Client) (pendingauth.Store, error) {
	if redisClient != nil {
		return pendingauth.NewRedisStore(redisClient, cfg.PendingAuth.Validity, cfg.PendingAuth.ReadGrace)
	}
	return pendingauth.NewCache(pendingauth.CacheOptions{
		Validity:  cfg.PendingAuth.Validity,
		ReadGrace: cfg.PendingAuth.ReadGrace,
	}), nil
}

func sweepServices(cfg *config.Config, logg *logger.Logger, m *metrics.CronJobMetrics, cache *dedup.Cache, pending pendingauth.Store) ([]*cron.Service, error) {
	var services []*cron.Service

	if cache != nil {
		job, err := cron.NewDedupPurgeJob(cache, logg)
		if err != nil {
			return nil, err
		}
		svc, err := cron.NewService(cron.ServiceParams{
			Logger:   logg,
			Registry: cron.NewRegistry(job),
			Metrics:  m,
			Interval: cfg.Dedup.SweepInterval,
		})
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}

	job, err := cron.NewPendingAuthSweepJob(pending, logg)
	if err != nil {
		return nil, err
	}
	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Metrics:  m,
		Interval: cfg.PendingAuth.SweepInterval,
	})
	if err != nil {
		return nil, err
	}
	return append(services, svc), nil
}
