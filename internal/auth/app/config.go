package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the auth service configuration, populated from the
// environment. A .env file in the working directory is loaded first when
// present.
type Config struct {
	Issuer string `env:"AUTH_ISSUER" envDefault:"http://localhost:9000"`

	DatabaseFile string `env:"AUTH_DATABASE_FILE" envDefault:"auth.db"`
	RSABits      int    `env:"AUTH_RSA_BITS" envDefault:"2048"`

	// DevSecrets seeds fixed, well-known credentials on first boot.
	// Only for local development.
	DevSecrets bool `env:"AUTH_DEV_SECRETS" envDefault:"false"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Port      int    `env:"PORT" envDefault:"9000"`

	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig reads the configuration from the environment, loading a local
// .env file first if one exists.
func LoadConfig() (Config, error) {
	// A missing .env file is not an error; the environment wins either way.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
