package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the listen surface and liveness probing.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 9339
	DefaultPingInterval = 120 * time.Second
)

// Config holds validated environment configuration
type Config struct {
	Host         string
	Port         int
	PingInterval time.Duration

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error aggregating every invalid variable.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: HOST (defaults to 0.0.0.0)
	cfg.Host = getEnvOrDefault("HOST", DefaultHost)

	// Optional: PORT (defaults to 9339, must be a valid port number)
	portValue := getEnvOrDefault("PORT", strconv.Itoa(DefaultPort))
	port, err := strconv.Atoi(portValue)
	if err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", portValue))
	} else {
		cfg.Port = port
	}

	// Optional: PING_INTERVAL_SECONDS (defaults to 120, must be positive)
	pingValue := getEnvOrDefault("PING_INTERVAL_SECONDS", "120")
	pingSeconds, err := strconv.Atoi(pingValue)
	if err != nil || pingSeconds < 1 {
		errors = append(errors, fmt.Sprintf("PING_INTERVAL_SECONDS must be a positive integer (got '%s')", pingValue))
	} else {
		cfg.PingInterval = time.Duration(pingSeconds) * time.Second
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits the configured allowed origins, falling back to the given
// defaults when unset.
func (c *Config) Origins(fallback []string) []string {
	if c.AllowedOrigins == "" {
		return fallback
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return fallback
	}
	return origins
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
