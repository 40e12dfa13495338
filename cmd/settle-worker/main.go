package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corvuslabs/credit-oracle-backend/internal/chain"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/internal/settlement"
	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/metrics"
	"github.com/corvuslabs/credit-oracle-backend/pkg/migrate"
	"github.com/corvuslabs/credit-oracle-backend/pkg/redis"
)

// The settle worker is for deployments that separate the HTTP API from
// settlement. It requires a durable ledger and the oracle signer, and
// coordinates with other replicas through a Redis lock.
func main() {
	logg := logger.New(logger.Options{ServiceName: "settle-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "settle-worker"

	logg = logger.New(logger.Options{
		ServiceName: "settle-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.DB.Configured() {
		logg.Error(context.Background(), "settle worker requires a durable ledger", nil)
		os.Exit(1)
	}
	if !cfg.Chain.CanSign() {
		logg.Error(context.Background(), "settle worker requires the oracle signer", nil)
		os.Exit(1)
	}

	store, dbClient := ledger.Open(context.Background(), cfg, logg)
	if dbClient == nil {
		logg.Error(context.Background(), "database unreachable, refusing to run settlement on a memory ledger", nil)
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

	submitter, err := chain.NewSubmitter(cfg.Chain, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build settlement submitter", err)
		os.Exit(1)
	}
	defer submitter.Close()

	var lock settlement.Lock
	if cfg.Redis.Configured() {
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

		lock, err = settlement.NewRedisLock(redisClient, cfg.Settlement.LockKey, cfg.Settlement.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create settlement lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured, running without the cross-process settlement lock")
	}

	settleMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	aggregator := settlement.NewAggregator(store, submitter, logg, settleMetrics)
	trigger := settlement.NewTrigger(aggregator, cfg.Settlement.Interval, lock, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"signer":      submitter.From(),
	})
	logg.Info(ctx, "starting settle worker")

	trigger.Start(ctx)

	logg.Info(ctx, "settle worker shutting down gracefully")
}
