package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/api"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/config"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/pkg/crypto"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/kpi-api.yml", "Configuration file path")
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

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT secret is required (set jwt.secret or JWT_SECRET)")
	}

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	if err := ensureAdminUser(context.Background(), store); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure admin user")
	}

	apiServer := api.NewRESTServer(cfg, store)

	done := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		done <- apiServer.ListenAndServe(addr)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("Received signal, shutting down")
		if err := apiServer.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
		}
	}

	log.Info().Msg("KPI API stopped")
}

// ensureAdminUser creates the initial admin account on an empty database and
// prints its generated password once, so a fresh deployment is reachable.
func ensureAdminUser(ctx context.Context, store storage.Store) error {
	_, err := store.GetUserByUsername(ctx, "admin")
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	password, err := crypto.GenerateRandomString(24)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return err
	}

	log.Info().
		Str("username", "admin").
		Str("password", password).
		Msg("Created initial admin user, change this password after first login")
	return nil
}
