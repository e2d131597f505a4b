// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port      string `env:"CHOREGAME_PORT" envDefault:"8080"`
	DBPath    string `env:"CHOREGAME_DB_PATH" envDefault:"choregame.db"`
	LogLevel  string `env:"CHOREGAME_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CHOREGAME_LOG_FORMAT" envDefault:"text"`
	BaseURL   string `env:"CHOREGAME_BASE_URL" envDefault:"http://localhost:8080"`

	PostmarkServerToken string `env:"CHOREGAME_POSTMARK_SERVER_TOKEN"`
	PostmarkFromEmail   string `env:"CHOREGAME_POSTMARK_FROM_EMAIL"`

	VAPIDPublicKey  string `env:"CHOREGAME_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"CHOREGAME_VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"CHOREGAME_VAPID_SUBSCRIBER"`

	FCMCredentialsFile string `env:"CHOREGAME_FCM_CREDENTIALS_FILE"`
	FCMCredentialsJSON string `env:"CHOREGAME_FCM_CREDENTIALS_JSON"`

	FanOutConcurrency int           `env:"CHOREGAME_FANOUT_CONCURRENCY" envDefault:"8"`
	BackgroundTimeout time.Duration `env:"CHOREGAME_BACKGROUND_TIMEOUT" envDefault:"30s"`

	WriteRateLimit float64 `env:"CHOREGAME_WRITE_RATE_LIMIT" envDefault:"30"`
	WriteBurst     int     `env:"CHOREGAME_WRITE_BURST" envDefault:"10"`

	MetricsUser string `env:"CHOREGAME_METRICS_USER"`
	MetricsPass string `env:"CHOREGAME_METRICS_PASS"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses a Config and checks it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.FanOutConcurrency < 1 {
		return fmt.Errorf("CHOREGAME_FANOUT_CONCURRENCY must be at least 1, got %d", c.FanOutConcurrency)
	}
	if c.BackgroundTimeout <= 0 {
		return fmt.Errorf("CHOREGAME_BACKGROUND_TIMEOUT must be positive, got %s", c.BackgroundTimeout)
	}
	if c.WriteRateLimit <= 0 || c.WriteBurst < 1 {
		return fmt.Errorf("CHOREGAME_WRITE_RATE_LIMIT and CHOREGAME_WRITE_BURST must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("CHOREGAME_VAPID_PUBLIC_KEY and CHOREGAME_VAPID_PRIVATE_KEY must be set together")
	}
	if c.PostmarkServerToken != "" && c.PostmarkFromEmail == "" {
		return fmt.Errorf("CHOREGAME_POSTMARK_FROM_EMAIL is required with a server token")
	}
	return nil
}

// EmailEnabled reports whether Postmark credentials are present.
func (c Config) EmailEnabled() bool {
	return c.PostmarkServerToken != ""
}

// WebPushEnabled reports whether VAPID keys are present.
func (c Config) WebPushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// FCMEnabled reports whether Firebase credentials are present.
func (c Config) FCMEnabled() bool {
	return c.FCMCredentialsFile != "" || c.FCMCredentialsJSON != ""
}
