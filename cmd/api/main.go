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

	"github.com/angelmondragon/donorledger-backend/api/routes"
	"github.com/angelmondragon/donorledger-backend/internal/campaigns"
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
	"github.com/angelmondragon/donorledger-backend/pkg/security"
	"github.com/angelmondragon/donorledger-backend/pkg/xrpl"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	rpcClient, err := xrpl.NewClient(cfg.Ledger.RPCURL)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger rpc client", err)
		os.Exit(1)
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
		logg.Error(context.Background(), "failed to create ledger gateway", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(gateway, cfg.Ledger.EscrowDuration, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, outbox.WithSource(eventSource(cfg)))
	userRepo := users.NewRepository(dbClient.DB())
	npoRepo := npos.NewRepository(dbClient.DB())
	campaignRepo := campaigns.NewRepository(dbClient.DB())

	userService, err := users.NewService(userRepo, security.NewHasher(cfg.Password))
	if err != nil {
		logg.Error(context.Background(), "failed to create user service", err)
		os.Exit(1)
	}

	npoService, err := npos.NewService(npoRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create npo service", err)
		os.Exit(1)
	}

	campaignService, err := campaigns.NewService(campaignRepo, npoRepo, dbClient, outboxService, logg, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create campaign service", err)
		os.Exit(1)
	}

	var platform ledger.Credential
	if cfg.Ledger.HasPlatformAccount() {
		platform = ledger.NewCredential(cfg.Ledger.PlatformAddress, cfg.Ledger.PlatformSecret)
	}

	donationService, err := donations.NewService(donations.ServiceParams{
		Repo:               donations.NewRepository(dbClient.DB()),
		Campaigns:          campaignRepo,
		NPOs:               npoRepo,
		Users:              userRepo,
		Settlement:         settlementService,
		Tx:                 dbClient,
		Outbox:             outboxService,
		Logger:             logg,
		Metrics:            ledgerMetrics,
		PlatformCredential: platform,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create donation service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":    addr,
		"network": cfg.Ledger.Network,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Gatherer:  prometheus.DefaultGatherer,
			Ledger:    gateway,
			Donations: donationService,
			Campaigns: campaignService,
			NPOs:      npoService,
			Users:     userService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Donations may block on ledger validation for the wait timeout.
		WriteTimeout: cfg.Ledger.SubmitTimeout + cfg.Ledger.WaitTimeout + 10*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func eventSource(cfg *config.Config) string {
	return "donorledger/" + cfg.Ledger.Network
}
