package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/donorledger-backend/internal/campaigns"
	"github.com/angelmondragon/donorledger-backend/internal/cron"
	"github.com/angelmondragon/donorledger-backend/internal/donations"
	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/internal/npos"
	"github.com/angelmondragon/donorledger-backend/internal/settlement"
	"github.com/angelmondragon/donorledger-backend/internal/users"
	"github.com/angelmondragon/donorledger-backend/pkg/config"
	"github.com/angelmondragon/donorledger-backend/pkg/db"
	"github.com/angelmondragon/donorledger-backend/pkg/instance"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/metrics"
	"github.com/angelmondragon/donorledger-backend/pkg/migrate"
	"github.com/angelmondragon/donorledger-backend/pkg/outbox"
	"github.com/angelmondragon/donorledger-backend/pkg/redis"
	"github.com/angelmondragon/donorledger-backend/pkg/xrpl"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"env": cfg.App.Env, "instance": instance.GetID()},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg, outbox.WithSource(eventSource(cfg)))
	npoRepo := npos.NewRepository(dbClient.DB())
	campaignRepo := campaigns.NewRepository(dbClient.DB())

	campaignService, err := campaigns.NewService(campaignRepo, npoRepo, dbClient, outboxService, logg, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create campaign service", err)
		os.Exit(1)
	}

	donationService, err := newDonationService(cfg, logg, dbClient, outboxService, npoRepo, campaignRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create donation service", err)
		os.Exit(1)
	}

	lifecycleJob, err := cron.NewCampaignLifecycleJob(cron.CampaignLifecycleJobParams{
		Logger:    logg,
		Campaigns: campaignService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create campaign lifecycle job", err)
		os.Exit(1)
	}

	reconcileJob, err := cron.NewDonationReconcileJob(cron.DonationReconcileJobParams{
		Logger:    logg,
		Donations: donationService,
		BatchSize: cfg.Cron.ReconcileBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create donation reconcile job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(lifecycleJob, reconcileJob, retentionJob).Select(cfg.Cron.Jobs)
	if err != nil {
		logg.Error(context.Background(), "invalid cron job selection", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"network":     cfg.Ledger.Network,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// newDonationService builds the reconciler's view of donations. It never
// initiates, so no platform credential is loaded.
func newDonationService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, outboxService *outbox.Service, npoRepo npos.Repository, campaignRepo campaigns.Repository) (donations.Service, error) {
	rpcClient, err := xrpl.NewClient(cfg.Ledger.RPCURL)
	if err != nil {
		return nil, err
	}
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	gateway, err := ledger.NewGateway(ledger.GatewayParams{
		Client:        rpcClient,
		Logger:        logg,
		Metrics:       ledgerMetrics,
		SubmitTimeout: cfg.Ledger.SubmitTimeout,
		QueryTimeout:  cfg.Ledger.QueryTimeout,
		WaitTimeout:   cfg.Ledger.WaitTimeout,
		PollInterval:  cfg.Ledger.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	settlementService, err := settlement.NewService(gateway, cfg.Ledger.EscrowDuration, nil)
	if err != nil {
		return nil, err
	}
	return donations.NewService(donations.ServiceParams{
		Repo:       donations.NewRepository(dbClient.DB()),
		Campaigns:  campaignRepo,
		NPOs:       npoRepo,
		Users:      users.NewRepository(dbClient.DB()),
		Settlement: settlementService,
		Tx:         dbClient,
		Outbox:     outboxService,
		Logger:     logg,
		Metrics:    ledgerMetrics,
	})
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey(cron.LockName + ":" + env)
}

func eventSource(cfg *config.Config) string {
	return "donorledger/" + cfg.Ledger.Network
}
