package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/config"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/consumer"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/decoder"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/event-consumer.yml", "Configuration file path")
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

	// Connect to NATS
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("lorawan-kpi-event-consumer"),
		nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
		nats.ReconnectWait(cfg.NATS.ReconnectInterval),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	log.Info().Str("url", cfg.NATS.URL).Msg("Connected to NATS")

	dec := decoder.New(store, cfg.Monitor.NumTxReplica, log.Logger)

	cons, err := consumer.New(nc, dec, consumer.Config{
		StreamSubject:      cfg.Consumer.StreamSubject,
		ApplicationSubject: cfg.Consumer.ApplicationSubject,
		Durable:            cfg.Consumer.Durable,
		PoolSize:           cfg.Consumer.PoolSize,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create consumer")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("subject", cfg.Consumer.StreamSubject).Msg("Starting event consumer")
	if err := cons.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Event consumer failed")
	}

	log.Info().Msg("Event consumer stopped")
}
