package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config carries the service configuration, loaded from SPONSORCHAIN_*
// environment variables with an optional .env file for local runs.
type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8080"`
	PGDSN          string        `envconfig:"PG_DSN"`
	AdminAddress   string        `envconfig:"ADMIN_ADDRESS" default:"sponsorchain:admin"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	RateLimitRPS   int           `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" default:"100"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	DemoStream     bool          `envconfig:"DEMO_STREAM"`
	DemoInterval   time.Duration `envconfig:"DEMO_INTERVAL" default:"2s"`
}

// Load reads the .env file when present and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("SPONSORCHAIN", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
