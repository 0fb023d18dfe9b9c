package opsagent

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Desarso/opsagent/stores"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
)

// Config holds the server configuration
type Config struct {
	Addr              string        `mapstructure:"addr"`
	ModelName         string        `mapstructure:"model"`
	Temperature       *float64      `mapstructure:"temperature"`
	MaxIterations     int           `mapstructure:"max_iterations"`
	StoreType         string        `mapstructure:"store_type"`
	StoreDSN          string        `mapstructure:"store_dsn"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	RetentionDays     int           `mapstructure:"retention_days"`
	RetentionSchedule string        `mapstructure:"retention_schedule"`
	ToolParallelism   int           `mapstructure:"tool_parallelism"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
	AnalysisModel     string        `mapstructure:"analysis_model"`
	DeniedTools       []string      `mapstructure:"denied_tools"`

	// Store overrides StoreType/StoreDSN when set.
	Store stores.MessageStore `mapstructure:"-"`
}

// envFields maps environment variables to config keys.
var envFields = map[string]string{
	"OPSAGENT_ADDR":               "addr",
	"OPSAGENT_MODEL":              "model",
	"OPSAGENT_TEMPERATURE":        "temperature",
	"OPSAGENT_MAX_ITERATIONS":     "max_iterations",
	"OPSAGENT_STORE_TYPE":         "store_type",
	"OPSAGENT_STORE_DSN":          "store_dsn",
	"OPSAGENT_HISTORY_LIMIT":      "history_limit",
	"OPSAGENT_RETENTION_DAYS":     "retention_days",
	"OPSAGENT_RETENTION_SCHEDULE": "retention_schedule",
	"OPSAGENT_TOOL_PARALLELISM":   "tool_parallelism",
	"OPSAGENT_RUN_TIMEOUT":        "run_timeout",
	"OPSAGENT_ANALYSIS_MODEL":     "analysis_model",
	"OPSAGENT_DENIED_TOOLS":       "denied_tools",
}

// NewConfig creates a configuration with default values
func NewConfig() *Config {
	return &Config{
		Addr:              ":8080",
		ModelName:         DefaultModel,
		MaxIterations:     10,
		StoreType:         "sqlite",
		StoreDSN:          "opsagent.sqlite",
		HistoryLimit:      50,
		RetentionDays:     30,
		RetentionSchedule: stores.DefaultRetentionSchedule,
		ToolParallelism:   4,
		RunTimeout:        5 * time.Minute,
		AnalysisModel:     DefaultAnalysisModel,
	}
}

// LoadConfig reads .env (if present) and OPSAGENT_* variables over the defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[CONFIG] No .env file loaded: %v", err)
	}

	raw := map[string]interface{}{}
	for env, key := range envFields {
		if v := os.Getenv(env); v != "" {
			raw[key] = v
		}
	}

	cfg := NewConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.ModelName == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %v", *c.Temperature))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.Store == nil && c.StoreType != "sqlite" && c.StoreType != "postgres" {
		errs = append(errs, fmt.Errorf("store_type must be sqlite or postgres, got %q", c.StoreType))
	}
	if c.Store == nil && c.StoreDSN == "" {
		errs = append(errs, errors.New("store_dsn must not be empty"))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history_limit must not be negative, got %d", c.HistoryLimit))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must not be negative, got %d", c.RetentionDays))
	}
	if c.ToolParallelism <= 0 {
		errs = append(errs, fmt.Errorf("tool_parallelism must be positive, got %d", c.ToolParallelism))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run_timeout must not be negative, got %s", c.RunTimeout))
	}
	return errors.Join(errs...)
}

// WithAddr sets the listen address
func (c *Config) WithAddr(addr string) *Config {
	c.Addr = addr
	return c
}

// WithModelName sets the default model for the configuration
func (c *Config) WithModelName(modelName string) *Config {
	c.ModelName = modelName
	return c
}

// WithTemperature sets the default sampling temperature
func (c *Config) WithTemperature(t float64) *Config {
	c.Temperature = &t
	return c
}

// WithMaxIterations sets the tool call cap of the general agent
func (c *Config) WithMaxIterations(n int) *Config {
	c.MaxIterations = n
	return c
}

// WithStore sets the message store for the configuration
func (c *Config) WithStore(store stores.MessageStore) *Config {
	c.Store = store
	return c
}

// WithSQLiteStore selects a SQLite store at the given path
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	c.StoreType = "sqlite"
	c.StoreDSN = dbPath
	return c
}

// WithPostgresStore selects a PostgreSQL store with the given DSN
func (c *Config) WithPostgresStore(dsn string) *Config {
	c.StoreType = "postgres"
	c.StoreDSN = dsn
	return c
}

// OpenStore returns the configured message store, connecting if needed.
func (c *Config) OpenStore() (stores.MessageStore, error) {
	if c.Store != nil {
		return c.Store, nil
	}
	store, err := stores.NewStore(stores.NewStoreConfig(c.StoreType, c.StoreDSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.StoreType, err)
	}
	c.Store = store
	return store, nil
}

// RetentionWindow is how long idle threads are kept; zero disables retention.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
