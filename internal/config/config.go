package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration shared by all binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ServerConfig identifies the deployment.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents the HTTP API listener configuration.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration.
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConsumerConfig represents the event consumer configuration.
type ConsumerConfig struct {
	StreamSubject      string `yaml:"stream_subject"`
	ApplicationSubject string `yaml:"application_subject"`
	Durable            string `yaml:"durable"`
	PoolSize           int    `yaml:"pool_size"`
}

// MonitorConfig represents the KPI aggregation configuration.
type MonitorConfig struct {
	WindowSize        time.Duration `yaml:"window_size"`
	BootstrapInterval time.Duration `yaml:"bootstrap_interval"`
	NumTxReplica      int           `yaml:"num_tx_replica"`
}

// Load loads configuration from file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if window := os.Getenv("KPI_WINDOW_SIZE"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			c.Monitor.WindowSize = d
		}
	}

	if replicas := os.Getenv("NUM_TX_REPLICA"); replicas != "" {
		if n, err := strconv.Atoi(replicas); err == nil {
			c.Monitor.NumTxReplica = n
		}
	}

	if poolSize := os.Getenv("WORKER_POOL_SIZE"); poolSize != "" {
		if n, err := strconv.Atoi(poolSize); err == nil {
			c.Consumer.PoolSize = n
		}
	}
}

func (c *Config) setDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Consumer.StreamSubject == "" {
		c.Consumer.StreamSubject = "lorawan.stream.events"
	}
	if c.Consumer.ApplicationSubject == "" {
		c.Consumer.ApplicationSubject = "lorawan.application.uplinks"
	}
	if c.Consumer.Durable == "" {
		c.Consumer.Durable = "kpi-monitor"
	}
	if c.Consumer.PoolSize == 0 {
		c.Consumer.PoolSize = 8
	}
	if c.Monitor.WindowSize == 0 {
		c.Monitor.WindowSize = 15 * time.Minute
	}
	if c.Monitor.BootstrapInterval == 0 {
		c.Monitor.BootstrapInterval = time.Minute
	}
	if c.Monitor.NumTxReplica == 0 {
		c.Monitor.NumTxReplica = 3
	}
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Monitor.NumTxReplica < 1 {
		return fmt.Errorf("num_tx_replica must be at least 1")
	}
	if c.Monitor.WindowSize < time.Minute {
		return fmt.Errorf("window_size must be at least one minute")
	}
	return nil
}
