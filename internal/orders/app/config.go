package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the orders service configuration, populated from the
// environment. A .env file in the working directory is loaded first when
// present.
type Config struct {
	AuthBaseURL string `env:"AUTH_BASE_URL" envDefault:"http://localhost:9000"`
	Issuer      string `env:"AUTH_ISSUER" envDefault:"http://localhost:9000"`

	// Client credentials this service uses to call inventory.
	ClientID     string `env:"ORDERS_CLIENT_ID" envDefault:"orders-service"`
	ClientSecret string `env:"ORDERS_CLIENT_SECRET,required"`

	InventoryBaseURL string `env:"INVENTORY_BASE_URL" envDefault:"http://localhost:9001"`

	DatabaseFile string        `env:"ORDERS_DATABASE_FILE" envDefault:"orders.db"`
	KeyTTL       time.Duration `env:"AUTH_KEY_TTL" envDefault:"5m"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Port      int    `env:"PORT" envDefault:"9002"`

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
