package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Locale      string `env:"LOCALE" envDefault:"de"`

	GatewayKind           string `env:"GATEWAY_KIND" envDefault:"edge"`
	GatewayBaseURL        string `env:"GATEWAY_BASE_URL"`
	GatewayAPIKey         string `env:"GATEWAY_API_KEY"`
	GatewayTimeoutSeconds int    `env:"GATEWAY_TIMEOUT_SECONDS" envDefault:"90"`
	OpenAIAPIKey          string `env:"OPENAI_API_KEY"`
	OpenAIModel           string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	VoiceEnabled          bool   `env:"VOICE_ENABLED" envDefault:"false"`

	SendIntervalMs      int `env:"SEND_INTERVAL_MS" envDefault:"2000"`
	MaxMessageLength    int `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`
	OnboardingThreshold int `env:"ONBOARDING_THRESHOLD" envDefault:"23"`
	TherapyHistoryTurns int `env:"THERAPY_HISTORY_TURNS" envDefault:"20"`
	PendingTTLSeconds   int `env:"PENDING_TTL_SECONDS" envDefault:"600"`

	ContinuationTTLSeconds int `env:"CONTINUATION_TTL_SECONDS" envDefault:"600"`
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalMs) * time.Millisecond
}

func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLSeconds) * time.Second
}

func (c *Config) ContinuationTTL() time.Duration {
	return time.Duration(c.ContinuationTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	switch c.GatewayKind {
	case GatewayKindEdge:
		if c.GatewayBaseURL == "" {
			return fmt.Errorf("GATEWAY_BASE_URL is required when GATEWAY_KIND=%s", GatewayKindEdge)
		}
	case GatewayKindOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when GATEWAY_KIND=%s", GatewayKindOpenAI)
		}
	default:
		return fmt.Errorf("GATEWAY_KIND must be %q or %q, got %q", GatewayKindEdge, GatewayKindOpenAI, c.GatewayKind)
	}

	if c.Locale != "de" && c.Locale != "en" {
		return fmt.Errorf("LOCALE must be \"de\" or \"en\", got %q", c.Locale)
	}

	if c.SendIntervalMs <= 0 {
		return fmt.Errorf("SEND_INTERVAL_MS must be positive")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: rate limits and events are per-instance only")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
