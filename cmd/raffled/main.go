package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/blockchain"
	"github.com/raosunjoy/HomeChance-Lottery/internal/config"
	"github.com/raosunjoy/HomeChance-Lottery/internal/handlers"
	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/metrics"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/randomness"
	"github.com/raosunjoy/HomeChance-Lottery/internal/service"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
	"github.com/raosunjoy/HomeChance-Lottery/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "raffled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.Logger()); err != nil {
		return err
	}
	defer logger.Sync()

	programKey, err := cfg.ProgramKeyBytes()
	if err != nil {
		return err
	}
	oracleKey, err := cfg.OracleKeyBytes()
	if err != nil {
		return err
	}

	store, err := storage.NewSqliteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ledger, err := blockchain.OpenLedger(ctx, store)
	if err != nil {
		return err
	}
	deriver, err := raffle.NewAuthorityDeriver(programKey)
	if err != nil {
		return err
	}
	oracle, err := randomness.NewOracle(oracleKey)
	if err != nil {
		return err
	}

	engine, err := raffle.NewEngine(raffle.EngineConfig{
		Chain:      ledger,
		Randomness: oracle,
		Authority:  deriver,
		Charity:    raffle.AccountID(cfg.CharityAccount),
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	raffles := service.New(engine, store, collector)

	errCh := make(chan error, 2)

	trackerInstance := tracker.NewTracker(ctx, store, ledger, collector, cfg.TrackerBatch)
	go func() {
		ticker := time.NewTicker(cfg.TrackerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				trackerInstance.Finalize()
				return
			case <-ticker.C:
				if err := trackerInstance.Run(); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("tracker pass failed", zap.Error(err))
				}
			}
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.NewHTTPHandler(raffles, oracle, ledger, collector).RegisterRoutes(router)
	if cfg.LedgerAdmin {
		handlers.NewLedgerHandler(ledger).RegisterRoutes(router)
		logger.Warn("ledger admin routes enabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		logger.Error("stopping on error", zap.Error(runErr))
	case <-waitForInterrupt():
		logger.Info("interrupt received, shutting down")
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	return runErr
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
