package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the inventory service configuration, populated from the
// environment. A .env file in the working directory is loaded first when
// present.
type Config struct {
	AuthBaseURL string `env:"AUTH_BASE_URL" envDefault:"http://localhost:9000"`
	Issuer      string `env:"AUTH_ISSUER" envDefault:"http://localhost:9000"`

	DatabaseFile string        `env:"INVENTORY_DATABASE_FILE" envDefault:"inventory.db"`
	KeyTTL       time.Duration `env:"AUTH_KEY_TTL" envDefault:"5m"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Port      int    `env:"PORT" envDefault:"9001"`

	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

// LoadConfig reads the configuration from the environment, loading a local
// .env file first if one exists.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
