package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battle-arena/internal/api"
	"battle-arena/internal/app"
	"battle-arena/internal/battle"
	"battle-arena/internal/broadcast"
	"battle-arena/internal/config"
	"battle-arena/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("server: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	envFile := flag.String("env-file", ".env", "Dotenv file loaded before the config")
	flag.Parse()

	// A missing .env is normal outside local development.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prices, err := app.Prices(cfg.Prices, logger.Named("prices"))
	if err != nil {
		return err
	}

	events := ledger.NewEventQueue(cfg.Ledger.EventBuffer)
	defer events.Close()
	store, closeLedger, err := app.OpenLedger(cfg.Ledger, events, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLedger(); err != nil {
			logger.Warn("close ledger", zap.Error(err))
		}
	}()

	var (
		hub   *broadcast.Hub
		sinks broadcast.Multi
	)
	if cfg.Broadcast.WebSocket {
		hub = broadcast.NewHub(logger)
		defer hub.Close()
		sinks = append(sinks, hub)
	}
	if cfg.Broadcast.NATS.URL != "" {
		nc, err := broadcast.DialNATS(cfg.Broadcast.NATS.URL, cfg.Broadcast.NATS.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks = append(sinks, nc)
	}

	battleOpts, err := app.BattleOptions(cfg.Battle, prices, logger)
	if err != nil {
		return err
	}
	battleOpts.Broadcaster = sinks

	registry := battle.NewRegistry(battle.RegistryOptions{
		Battle:          battleOpts,
		Ledger:          app.Retrying(cfg.Ledger, store, logger),
		DefaultDuration: cfg.Battle.DefaultDuration,
		Retention:       cfg.Battle.Retention,
	})
	defer registry.Close()

	go registry.Consume(ctx, events)
	go registry.Janitor(ctx, cfg.Battle.JanitorInterval)

	// Pick up a battle that was already open in the ledger before this process started.
	if current, err := registry.Current(ctx); err == nil {
		logger.Info("resumed ledger battle", zap.Uint64("battle_id", current.ID()), zap.Stringer("phase", current.Info().Phase))
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := api.Deps{
		Registry:  registry,
		Registrar: store,
		Prices:    prices,
		Logger:    logger,
	}
	if hub != nil {
		deps.Hub = hub
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server",
			zap.String("addr", srv.Addr),
			zap.String("ledger", cfg.Ledger.Driver),
			zap.String("prices", cfg.Prices.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
