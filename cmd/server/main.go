// Package main is the entry point for the marketpulse market data
// orchestrator. It wires the databases, feed clients, state store, refresh
// scheduler, maintenance jobs and HTTP server, then blocks until a shutdown
// signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketpulse/internal/backup"
	"marketpulse/internal/clientdata"
	"marketpulse/internal/clients/forecast"
	"marketpulse/internal/clients/marketdata"
	"marketpulse/internal/clients/news"
	"marketpulse/internal/config"
	"marketpulse/internal/database"
	"marketpulse/internal/events"
	"marketpulse/internal/history"
	"marketpulse/internal/maintenance"
	"marketpulse/internal/portfolio"
	"marketpulse/internal/scheduler"
	"marketpulse/internal/server"
	"marketpulse/internal/store"
	"marketpulse/internal/universe"
	"marketpulse/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("symbol", cfg.DefaultSymbol.String()).
		Int("universe", len(cfg.Universe)).
		Msg("Starting marketpulse")

	// Databases. history.db keeps universe observations across restarts,
	// cache.db holds feed response blobs and the portfolio book.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{historyDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}
	databases := []*database.DB{historyDB, cacheDB}

	// Repositories and services.
	cacheRepo := clientdata.NewRepository(cacheDB.Conn())
	historyRepo := history.New(historyDB, log)
	portfolioSvc := portfolio.New(cacheRepo, log)

	// Feed clients.
	marketClient := marketdata.NewClient(cfg.MarketDataBaseURL, log)
	forecastClient := forecast.NewClient(cfg.ForecastServiceURL, log)
	newsClient := news.NewClient(cfg.NewsServiceURL, log)

	// State store, event bus, fan-out aggregator, scheduler.
	st := store.New(cfg.DefaultSymbol, log)
	bus := events.NewBus()
	aggregator := universe.NewAggregator(marketClient, cfg.UniverseSize, log)

	sched := scheduler.New(
		scheduler.Config{
			Universe:         cfg.Universe,
			PriceInterval:    cfg.PriceInterval,
			ForecastInterval: cfg.ForecastInterval,
			CandleInterval:   cfg.CandleInterval,
			SentimentWindow:  cfg.SentimentWindow,
			CandleTimePeriod: cfg.CandleTimePeriod,
		},
		st, bus,
		marketClient, forecastClient, newsClient,
		aggregator, cacheRepo, historyRepo,
		log,
	)

	// Optional cloud backup.
	var backupSvc *backup.Service
	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		backupSvc, err = backup.NewService(ctx, cfg.Backup, cfg.DataDir, databases, log)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("Backup disabled, failed to initialize")
			backupSvc = nil
		}
	}

	// Maintenance jobs.
	var jobs *maintenance.Jobs
	if cfg.MaintenanceEnabled {
		var backupper maintenance.Backupper
		if backupSvc != nil {
			backupper = backupSvc
		}
		jobs = maintenance.New(
			cacheRepo, historyRepo, cfg.HistoryRetention,
			databases, backupper, 14, log,
		)
		if err := jobs.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start maintenance jobs")
		}
	}

	// HTTP server.
	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Store:     st,
		Scheduler: sched,
		History:   historyRepo,
		Portfolio: portfolioSvc,
		Bus:       bus,
		Databases: databases,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sched.Start(cfg.DefaultSymbol)
	log.Info().Int("port", cfg.Port).Msg("marketpulse started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	sched.Stop()
	if jobs != nil {
		jobs.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("marketpulse stopped")
}
