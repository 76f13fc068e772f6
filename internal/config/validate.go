package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Pipeline tunables
	if c.AI.FreeMessageLimit < 0 {
		errs = append(errs, fmt.Sprintf("AI_FREE_MESSAGE_LIMIT must be non-negative, got %d", c.AI.FreeMessageLimit))
	}
	if c.AI.FlushThreshold < 1 {
		errs = append(errs, fmt.Sprintf("AI_FLUSH_THRESHOLD must be positive, got %d", c.AI.FlushThreshold))
	}
	if c.AI.FlushInterval <= 0 {
		errs = append(errs, "AI_FLUSH_INTERVAL must be positive")
	}

	// Provider API key: warn only, local dev may point at a mock
	if c.Provider.APIKey == "" {
		slog.Warn("PROVIDER_API_KEY is empty, inference calls will be rejected upstream")
	}

	// Billing key absence is a supported configuration (free tier only),
	// not an error. The ledger reports it as autumn_not_configured.
	if c.Billing.APIKey == "" {
		slog.Info("BILLING_API_KEY is empty, paid-tier reservations will be denied")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
