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

	"github.com/corvuslabs/credit-oracle-backend/api/controllers"
	"github.com/corvuslabs/credit-oracle-backend/api/routes"
	"github.com/corvuslabs/credit-oracle-backend/internal/chain"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/internal/settlement"
	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	"github.com/corvuslabs/credit-oracle-backend/pkg/db"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/metrics"
	"github.com/corvuslabs/credit-oracle-backend/pkg/migrate"
)

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
	})

	store, dbClient := ledger.Open(context.Background(), cfg, logg)
	if dbClient != nil {
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
	}

	var oracle controllers.OracleReader
	if cfg.Chain.CanRead() {
		o, err := chain.NewOracle(cfg.Chain)
		if err != nil {
			logg.Error(context.Background(), "failed to bind chain reader", err)
			os.Exit(1)
		}
		oracle = o
	} else {
		logg.Warn(context.Background(), "chain endpoint not configured, on-chain reads disabled")
	}

	var submitter settlement.Submitter
	if cfg.Chain.CanSign() {
		s, err := chain.NewSubmitter(cfg.Chain, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to build settlement submitter", err)
			os.Exit(1)
		}
		defer s.Close()
		submitter = s
	} else {
		logg.Warn(context.Background(), "oracle signer not configured, settlement runs will abort")
	}

	settleMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	aggregator := settlement.NewAggregator(store, submitter, logg, settleMetrics)
	trigger := settlement.NewTrigger(aggregator, cfg.Settlement.Interval, nil, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go trigger.Start(ctx)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	var dbP db.Pinger
	if dbClient != nil {
		dbP = dbClient
	}

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbP, store, oracle, trigger),
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(runCtx, "api server shutting down gracefully")
}
