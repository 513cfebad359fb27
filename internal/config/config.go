package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/patrimo/valuation-backend/internal/logger"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Valuation ValuationConfig `yaml:"valuation"`
	Logging   logger.Config   `yaml:"logging"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString renders the lib/pq connection string.
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type ValuationConfig struct {
	// Currency every snapshot and history entry is valued in.
	Currency string `yaml:"currency"`
	// FetchWorkers bounds the provider fetch pool. Zero means the default.
	FetchWorkers int `yaml:"fetch_workers"`
	// SnapshotLookback bounds how many prior snapshots reconciliation walks.
	SnapshotLookback int `yaml:"snapshot_lookback"`
}

// Load reads the YAML config file and applies environment overrides for
// secrets. A .env file is honoured when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; env vars may come from the environment itself.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Valuation.Currency == "" {
		return nil, fmt.Errorf("valuation.currency must be set")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     "8080",
			APIToken: "dev-token",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "valuation",
			SSLMode: "disable",
		},
		Valuation: ValuationConfig{
			Currency:         "GBP",
			FetchWorkers:     4,
			SnapshotLookback: 10,
		},
		Logging: logger.Config{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
}
