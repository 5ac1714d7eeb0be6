package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Snowflake connection.
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string

	// Execution limits.
	MaxRows      int
	QueryTimeout time.Duration

	// Catalog.
	ChecksFile string // optional path to a YAML manifest with extra checks

	// Logging.
	LogLevel slog.Level

	// Observability.
	OTelEnabled bool

	// CLI-only fields (not settable via env vars).
	AuditLog string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	Account      *string
	User         *string
	Role         *string
	Warehouse    *string
	LogLevel     *string
	MaxRows      *int
	QueryTimeout *time.Duration
	ChecksFile   *string
	OTelEnabled  bool
	AuditLog     string
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		Account:      os.Getenv("SNOWFLAKE_ACCOUNT"),
		User:         os.Getenv("SNOWFLAKE_USER"),
		Password:     os.Getenv("SNOWFLAKE_PASSWORD"),
		Role:         os.Getenv("SNOWFLAKE_ROLE"),
		Warehouse:    os.Getenv("SNOWFLAKE_WAREHOUSE"),
		MaxRows:      1000,
		QueryTimeout: 60 * time.Second,
	}
}

// loadEnvVars reads the remaining supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_ROWS value %q: must be a positive integer", v)
		}
		cfg.MaxRows = n
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.ChecksFile = os.Getenv("CHECKS_FILE")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.Account != nil {
		cfg.Account = *o.Account
	}
	if o.User != nil {
		cfg.User = *o.User
	}
	if o.Role != nil {
		cfg.Role = *o.Role
	}
	if o.Warehouse != nil {
		cfg.Warehouse = *o.Warehouse
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return fmt.Errorf("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.ChecksFile != nil {
		cfg.ChecksFile = *o.ChecksFile
	}

	cfg.AuditLog = o.AuditLog
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.Account == "" {
		return fmt.Errorf("SNOWFLAKE_ACCOUNT is required (set via env var or --account flag)")
	}
	if cfg.User == "" {
		return fmt.Errorf("SNOWFLAKE_USER is required (set via env var or --user flag)")
	}
	if cfg.Password == "" {
		return fmt.Errorf("SNOWFLAKE_PASSWORD is required")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
