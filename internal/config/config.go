package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig
	Demo     DemoConfig
	Provider ProviderConfig
	Redis    RedisConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// TrustProxy controls whether the rate limiter honors
	// X-Forwarded-For / X-Real-IP. Leave false unless the service sits
	// behind a reverse proxy that sets those headers itself.
	TrustProxy bool
}

type DemoConfig struct {
	Password        string
	EndDate         time.Time
	DailyLimit      int
	RateLimitMax    int
	RateLimitWindow time.Duration
	// Development exposes upstream error detail in 500 responses.
	Development bool
}

type ProviderConfig struct {
	Name string

	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicHost   string

	HFAPIKey string
	HFModel  string
	HFHost   string

	Timeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	ProviderAnthropic   = "anthropic"
	ProviderHuggingFace = "huggingface"
)

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:       k.String("server.host"),
			Port:       k.Int("server.port"),
			TrustProxy: k.Bool("trust.proxy"),
		},
		Demo: DemoConfig{
			Password:     k.String("demo.password"),
			DailyLimit:   k.Int("daily.limit"),
			RateLimitMax: k.Int("rate.limit.max"),
			// Opt-in: upstream error detail must never leak unless the
			// operator explicitly asks for it.
			Development: k.String("app.env") == "development",
		},
		Provider: ProviderConfig{
			Name:            k.String("ai.provider"),
			AnthropicAPIKey: k.String("anthropic.api.key"),
			AnthropicModel:  k.String("anthropic.model"),
			AnthropicHost:   k.String("anthropic.host"),
			HFAPIKey:        k.String("hf.api.key"),
			HFModel:         k.String("hf.model"),
			HFHost:          k.String("hf.host"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = ProviderAnthropic
	}
	if cfg.Provider.AnthropicModel == "" {
		cfg.Provider.AnthropicModel = "claude-3-haiku-20240307"
	}
	if cfg.Provider.HFModel == "" {
		cfg.Provider.HFModel = "mistralai/Mistral-7B-Instruct-v0.2"
	}
	if cfg.Demo.DailyLimit == 0 {
		// The hosted generation endpoint is cheaper per request, so it
		// ships with a higher daily allowance.
		if cfg.Provider.Name == ProviderHuggingFace {
			cfg.Demo.DailyLimit = 500
		} else {
			cfg.Demo.DailyLimit = 200
		}
	}
	if cfg.Demo.RateLimitMax == 0 {
		cfg.Demo.RateLimitMax = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	windowStr := k.String("rate.limit.window")
	if windowStr == "" {
		windowStr = "60s"
	}
	cfg.Demo.RateLimitWindow, err = time.ParseDuration(windowStr)
	if err != nil {
		return nil, fmt.Errorf("parsing rate limit window: %w", err)
	}

	timeoutStr := k.String("upstream.timeout")
	if timeoutStr == "" {
		timeoutStr = "120s"
	}
	cfg.Provider.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream timeout: %w", err)
	}

	if endStr := k.String("demo.end.date"); endStr != "" {
		cfg.Demo.EndDate, err = parseEndDate(endStr)
		if err != nil {
			return nil, fmt.Errorf("parsing demo end date: %w", err)
		}
	}

	return cfg, nil
}

// parseEndDate accepts either RFC 3339 or a bare YYYY-MM-DD date. A bare
// date is inclusive: the demo stays active through the end of that day.
func parseEndDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t.Add(24*time.Hour - time.Second), nil
}
