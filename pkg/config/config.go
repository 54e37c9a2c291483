// Package config loads configuration from environment variables.
// Values are read once at process start; there is no hot reload.
package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Load loads environment variables into the provided configuration struct.
//
// The function first attempts to load the default .env file if it hasn't
// been loaded yet, then parses environment variables into the struct based
// on field tags.
//
// Example:
//
//	type AppConfig struct {
//		ListenAddr          string `env:"LISTEN_ADDR" envDefault:":8080"`
//		StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required"`
//		StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
//		DatabaseURL         string `env:"DATABASE_URL,required"`
//	}
//
//	var cfg AppConfig
//	if err := config.Load(&cfg); err != nil {
//		// Handle error
//	}
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// Ignore errors - the .env file might not exist and that's ok
		_ = godotenv.Load()
	})
	if v == nil {
		return fmt.Errorf("config: nil pointer")
	}
	if err := env.Parse(v); err != nil {
		return fmt.Errorf("config: failed to parse environment: %w", err)
	}
	return nil
}
