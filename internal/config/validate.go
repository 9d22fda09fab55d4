package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for startup-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.Demo.Password == "" {
		errs = append(errs, "DEMO_PASSWORD is required")
	}

	switch c.Provider.Name {
	case ProviderAnthropic:
		if c.Provider.AnthropicAPIKey == "" {
			errs = append(errs, "ANTHROPIC_API_KEY is required when AI_PROVIDER=anthropic")
		}
	case ProviderHuggingFace:
		if c.Provider.HFAPIKey == "" {
			errs = append(errs, "HF_API_KEY is required when AI_PROVIDER=huggingface")
		}
	default:
		errs = append(errs, fmt.Sprintf("AI_PROVIDER must be %q or %q, got %q",
			ProviderAnthropic, ProviderHuggingFace, c.Provider.Name))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if c.Demo.DailyLimit < 1 {
		errs = append(errs, fmt.Sprintf("DAILY_LIMIT must be positive, got %d", c.Demo.DailyLimit))
	}
	if c.Demo.RateLimitMax < 1 {
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_MAX must be positive, got %d", c.Demo.RateLimitMax))
	}
	if c.Demo.RateLimitWindow <= 0 {
		errs = append(errs, "RATE_LIMIT_WINDOW must be positive")
	}

	// End date: warn only — an unset date means the demo never expires.
	if c.Demo.EndDate.IsZero() {
		slog.Warn("DEMO_END_DATE is not set — the demo will never expire")
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
