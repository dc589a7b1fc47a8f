package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerURL   string        `env:"TASKDUEL_SERVER_URL" envDefault:"http://localhost:8000"`
	LogLevel    slog.Level    `env:"TASKDUEL_LOG_LEVEL" envDefault:"WARN"`
	TokenFile   string        `env:"TASKDUEL_TOKEN_FILE"`
	HTTPTimeout time.Duration `env:"TASKDUEL_HTTP_TIMEOUT" envDefault:"10s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving config dir: %w", err)
		}
		cfg.TokenFile = filepath.Join(dir, "taskduel", "token")
	}
	return &cfg, nil
}
