package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/config"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/scheduler"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/kpi-scheduler.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	sched := scheduler.New(store, scheduler.Config{
		WindowSize:        cfg.Monitor.WindowSize,
		BootstrapInterval: cfg.Monitor.BootstrapInterval,
		NumTxReplica:      cfg.Monitor.NumTxReplica,
	}, clockwork.NewRealClock(), log.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Dur("windowSize", cfg.Monitor.WindowSize).
		Int("numTxReplica", cfg.Monitor.NumTxReplica).
		Msg("Starting KPI scheduler")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("KPI scheduler failed")
	}

	log.Info().Msg("KPI scheduler stopped")
}
