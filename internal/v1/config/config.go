// Package config reads and validates the LOBBYD_* environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Defaults applied when the environment and the command line are silent.
const (
	DefaultPort           = 31337
	DefaultMaxConnections = 256
)

// Config holds the validated process configuration.
type Config struct {
	// Port is the TCP port the lobby listens on.
	Port int
	// MaxConnections caps concurrently seated users; connections beyond
	// it are refused, not queued.
	MaxConnections int

	// OpsAddr serves metrics and health probes. Empty disables the ops
	// listener entirely.
	OpsAddr string

	// Redis lifecycle-event bus, optional.
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// OTLPEndpoint enables trace export when set. It is read from the
	// standard OTEL_EXPORTER_OTLP_ENDPOINT variable.
	OTLPEndpoint string

	// DevMode switches logging to the development encoder.
	DevMode bool

	parseErrs []string
}

// Load reads LOBBYD_* variables, applies defaults, and validates the
// result. Callers that override fields afterwards (command-line flags)
// should call Validate again.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Port = cfg.intEnv("LOBBYD_PORT", DefaultPort)
	cfg.MaxConnections = cfg.intEnv("LOBBYD_MAX_CONNECTIONS", DefaultMaxConnections)
	cfg.OpsAddr = os.Getenv("LOBBYD_OPS_ADDR")

	cfg.RedisEnabled = os.Getenv("LOBBYD_REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("LOBBYD_REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("LOBBYD_REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		}
		cfg.RedisPassword = os.Getenv("LOBBYD_REDIS_PASSWORD")
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.DevMode = os.Getenv("LOBBYD_DEV_MODE") == "true"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("environment configuration validated", "config", cfg.String())
	return cfg, nil
}

// Validate checks every field and reports all problems at once, so a bad
// deployment surfaces in a single round instead of one variable per crash.
func (c *Config) Validate() error {
	errs := slices.Clone(c.parseErrs)

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("LOBBYD_PORT must be a valid port number between 1 and 65535 (got %d)", c.Port))
	}
	if c.MaxConnections < 1 {
		errs = append(errs, fmt.Sprintf("LOBBYD_MAX_CONNECTIONS must be at least 1 (got %d)", c.MaxConnections))
	}
	if c.OpsAddr != "" && !isValidHostPort(c.OpsAddr) {
		errs = append(errs, fmt.Sprintf("LOBBYD_OPS_ADDR must be in format 'host:port' (got '%s')", c.OpsAddr))
	}
	if c.RedisEnabled && !isValidHostPort(c.RedisAddr) {
		errs = append(errs, fmt.Sprintf("LOBBYD_REDIS_ADDR must be in format 'host:port' (got '%s')", c.RedisAddr))
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String renders the configuration for logs, with the password redacted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"port=%d max_connections=%d ops_addr=%q redis_enabled=%t redis_addr=%q redis_password=%s otlp_endpoint=%q dev_mode=%t",
		c.Port, c.MaxConnections, c.OpsAddr,
		c.RedisEnabled, c.RedisAddr, redactSecret(c.RedisPassword),
		c.OTLPEndpoint, c.DevMode)
}

// intEnv parses an integer variable, recording a parse failure for
// Validate to report rather than failing fast.
func (c *Config) intEnv(key string, def int) int {
	raw := getEnvOrDefault(key, strconv.Itoa(def))
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Sprintf("%s must be a number (got '%s')", key, raw))
		return def
	}
	return v
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
