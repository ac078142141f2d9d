package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketloop/settlements-backend/internal/accounts"
	"github.com/marketloop/settlements-backend/internal/attribution"
	"github.com/marketloop/settlements-backend/internal/cron"
	"github.com/marketloop/settlements-backend/internal/ledger"
	"github.com/marketloop/settlements-backend/internal/ops"
	"github.com/marketloop/settlements-backend/internal/payouts"
	"github.com/marketloop/settlements-backend/internal/wallet"
	"github.com/marketloop/settlements-backend/pkg/config"
	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/logger"
	"github.com/marketloop/settlements-backend/pkg/metrics"
	"github.com/marketloop/settlements-backend/pkg/migrate"
	"github.com/marketloop/settlements-backend/pkg/outbox"
	"github.com/marketloop/settlements-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "settlement-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "settlement-worker"

	logg = logger.New(logger.Options{
		ServiceName: "settlement-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
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

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build job registry", err)
		os.Exit(1)
	}

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Metrics:  sweepMetrics,
		NewLock: func(jobName string, ttl time.Duration) (cron.Lock, error) {
			return cron.NewRedisLock(redisClient, redisClient.LockKey(jobName), ttl)
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	opsServer := &http.Server{
		Addr: ":" + cfg.Metrics.Port,
		Handler: ops.NewHandler(ops.HandlerParams{
			Logger:      logg,
			ServiceKind: cfg.Service.Kind,
			Dependencies: map[string]ops.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
	}
	go func() {
		logg.Info(logg.WithField(ctx, "addr", opsServer.Addr), "serving metrics and health")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error shutting down ops server", err)
		}
	}()

	logg.Info(ctx, "starting settlement worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "settlement worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "settlement worker shutting down gracefully")
}

// buildRegistry wires every sweep. The payout sweep is registered only
// when a rail endpoint is configured; balances keep accruing without one.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	ledgerRepo := ledger.NewRepository(conn)
	accountsRepo := accounts.NewRepository(conn)
	attributionRepo := attribution.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	projector, err := wallet.NewProjector(ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("wallet projector: %w", err)
	}

	clearingJob, err := cron.NewClearingJob(cron.ClearingJobParams{
		Logger:   logg,
		DB:       dbClient,
		Entries:  ledgerRepo,
		Wallets:  projector,
		Interval: cfg.Settlement.ClearingSweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("clearing job: %w", err)
	}

	attributionService, err := attribution.NewService(attribution.Params{
		DB:       dbClient,
		Repo:     attributionRepo,
		Accounts: accountsRepo,
		Outbox:   outboxService,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("attribution service: %w", err)
	}
	leadExpiryJob, err := cron.NewLeadExpiryJob(cron.LeadExpiryJobParams{
		Logger:      logg,
		Attribution: attributionService,
		LeadTTL:     cfg.Settlement.LeadTTL,
		Interval:    cfg.Settlement.LeadSweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("lead expiry job: %w", err)
	}

	reconcileJob, err := cron.NewWalletReconcileJob(cron.WalletReconcileJobParams{
		Logger:   logg,
		DB:       dbClient,
		Entries:  ledgerRepo,
		Wallets:  projector,
		Interval: cfg.Settlement.WalletSweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet reconcile job: %w", err)
	}

	registry := cron.NewRegistry(clearingJob, leadExpiryJob, reconcileJob)

	if cfg.Payout.RailURL == "" {
		logg.Warn(context.Background(), "no payout rail configured, payout sweep disabled")
		return registry, nil
	}

	provider, err := payouts.NewHTTPProvider(cfg.Payout.RailURL, cfg.Payout.RailAPIKey)
	if err != nil {
		return nil, fmt.Errorf("payout provider: %w", err)
	}
	batcher, err := payouts.NewBatcher(payouts.Params{
		DB:       dbClient,
		Ledger:   ledgerRepo,
		Accounts: accountsRepo,
		Batches:  payouts.NewRepository(conn),
		Outbox:   outboxService,
		Wallets:  projector,
		Provider: provider,
		Config:   cfg.Payout,
		Currency: cfg.Settlement.Currency,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payout batcher: %w", err)
	}
	payoutJob, err := cron.NewPayoutJob(cron.PayoutJobParams{
		Logger:   logg,
		Batcher:  batcher,
		Interval: cfg.Payout.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("payout job: %w", err)
	}
	registry.Register(payoutJob)

	return registry, nil
}
