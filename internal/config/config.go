// Package config maps environment variables into a typed, read-only
// configuration struct. Nothing else in the module reads the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds runtime configuration for the Social Finance client.
type Config struct {
	// APIURL is the origin of the Social Finance API. The /api/v1 prefix is
	// appended by the client, not configured here.
	APIURL string `env:"SOFI_API_URL" envDefault:"http://localhost:8000"`

	// TokenFile is where the access/refresh token pair is persisted between
	// runs. Empty selects the default under the user config directory.
	TokenFile string `env:"SOFI_TOKEN_FILE"`

	// Timeout bounds every API call end to end, including the single
	// refresh-and-retry a 401 may trigger.
	Timeout time.Duration `env:"SOFI_TIMEOUT" envDefault:"30s"`

	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64 `env:"SOFI_RATE_LIMIT" envDefault:"0"`

	Debug bool `env:"SOFI_DEBUG" envDefault:"false"`
}

// Load parses the environment into a Config and resolves defaults that
// depend on the host (the token file location).
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] env.Parse")
	}

	if cfg.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "[config.Load] os.UserConfigDir")
		}
		cfg.TokenFile = filepath.Join(dir, "sofi", "tokens.json")
	}

	return cfg, nil
}
