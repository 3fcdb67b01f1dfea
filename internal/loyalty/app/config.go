package app

import (
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	APIURL   string `env:"LOYALTY_API_URL"   envDefault:"http://localhost:8080"`
	DataFile string `env:"LOYALTY_DATA_FILE" envDefault:"loyalty.db"`

	// Secret seals tokens and the session at rest. Empty stores them in the
	// clear.
	Secret string `env:"LOYALTY_SECRET"`

	Env       string `env:"ENV"        envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"warn"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	LogOutput io.Writer `env:"-"` // default stderr

	HTTPTimeout      time.Duration `env:"LOYALTY_HTTP_TIMEOUT"       envDefault:"10s"`
	WriteTimeout     time.Duration `env:"LOYALTY_WRITE_TIMEOUT"      envDefault:"5s"`
	RefreshPerMinute int           `env:"LOYALTY_REFRESH_PER_MINUTE" envDefault:"6"`
	RefreshBurst     int           `env:"LOYALTY_REFRESH_BURST"      envDefault:"3"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
