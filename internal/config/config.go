package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"nexus/internal/storage"
)

type Config struct {
	StorageBackend storage.Backend `yaml:"storage_backend"`
	StoragePath    string          `yaml:"storage_path"`
	// OriginURL attaches to a running origin over websocket instead of
	// opening the storage directly.
	OriginURL   string `yaml:"origin_url"`
	BridgeAddr  string `yaml:"bridge_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	CompletionAPIKey   string        `yaml:"completion_api_key"`
	CompletionModel    string        `yaml:"completion_model"`
	CompletionEndpoint string        `yaml:"completion_endpoint"`
	CompletionTimeout  time.Duration `yaml:"completion_timeout"`
	CompletionRate     float64       `yaml:"completion_rate"`
	CompletionBurst    int           `yaml:"completion_burst"`

	HistoryWindow int    `yaml:"history_window"`
	SeedSecret    string `yaml:"seed_secret"`
	BcryptCost    int    `yaml:"bcrypt_cost"`
}

func Default() *Config {
	return &Config{
		StorageBackend:     storage.BackendBbolt,
		StoragePath:        "nexus.db",
		BridgeAddr:         "localhost:8090",
		LogLevel:           "info",
		CompletionModel:    "gemini-2.5-flash",
		CompletionEndpoint: "https://generativelanguage.googleapis.com/v1beta",
		CompletionTimeout:  30 * time.Second,
		CompletionRate:     1,
		CompletionBurst:    3,
		HistoryWindow:      10,
		SeedSecret:         "nexus",
		BcryptCost:         bcrypt.DefaultCost,
	}
}

// Load builds the configuration from defaults, an optional .env file,
// the YAML file named by NEXUS_CONFIG and finally the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path := os.Getenv("NEXUS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.StorageBackend = storage.Backend(getEnv("NEXUS_STORAGE", string(c.StorageBackend)))
	c.StoragePath = getEnv("NEXUS_DB", c.StoragePath)
	c.OriginURL = getEnv("NEXUS_ORIGIN", c.OriginURL)
	c.BridgeAddr = getEnv("NEXUS_BRIDGE_ADDR", c.BridgeAddr)
	c.MetricsAddr = getEnv("NEXUS_METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("NEXUS_LOG_LEVEL", c.LogLevel)
	c.CompletionAPIKey = getEnv("API_KEY", c.CompletionAPIKey)
	c.CompletionModel = getEnv("NEXUS_COMPLETION_MODEL", c.CompletionModel)
	c.CompletionEndpoint = getEnv("NEXUS_COMPLETION_ENDPOINT", c.CompletionEndpoint)
	c.SeedSecret = getEnv("NEXUS_SEED_SECRET", c.SeedSecret)

	var err error
	if c.CompletionTimeout, err = time.ParseDuration(getEnv("NEXUS_COMPLETION_TIMEOUT", c.CompletionTimeout.String())); err != nil {
		return fmt.Errorf("NEXUS_COMPLETION_TIMEOUT: %w", err)
	}
	if c.CompletionRate, err = strconv.ParseFloat(getEnv("NEXUS_COMPLETION_RATE", strconv.FormatFloat(c.CompletionRate, 'f', -1, 64)), 64); err != nil {
		return fmt.Errorf("NEXUS_COMPLETION_RATE: %w", err)
	}
	if c.CompletionBurst, err = strconv.Atoi(getEnv("NEXUS_COMPLETION_BURST", strconv.Itoa(c.CompletionBurst))); err != nil {
		return fmt.Errorf("NEXUS_COMPLETION_BURST: %w", err)
	}
	if c.HistoryWindow, err = strconv.Atoi(getEnv("NEXUS_HISTORY_WINDOW", strconv.Itoa(c.HistoryWindow))); err != nil {
		return fmt.Errorf("NEXUS_HISTORY_WINDOW: %w", err)
	}
	if c.BcryptCost, err = strconv.Atoi(getEnv("NEXUS_BCRYPT_COST", strconv.Itoa(c.BcryptCost))); err != nil {
		return fmt.Errorf("NEXUS_BCRYPT_COST: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case storage.BackendBbolt, storage.BackendPebble:
		if c.StoragePath == "" && c.OriginURL == "" {
			return fmt.Errorf("NEXUS_DB is required for the %s backend", c.StorageBackend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.HistoryWindow <= 0 {
		return fmt.Errorf("NEXUS_HISTORY_WINDOW must be greater than 0")
	}

	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("NEXUS_COMPLETION_TIMEOUT must be greater than 0")
	}

	if c.CompletionRate <= 0 || c.CompletionBurst <= 0 {
		return fmt.Errorf("completion rate and burst must be greater than 0")
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("NEXUS_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("NEXUS_LOG_LEVEL: %w", err)
	}
	return l, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
