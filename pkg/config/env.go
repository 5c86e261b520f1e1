package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Bootstrap holds the process settings read from the environment before the
// configuration file is opened.
type Bootstrap struct {
	ConfigPath  string `env:"CONFIG_PATH" envDefault:"config.toml"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	LogDir      string `env:"LOG_DIR" envDefault:"logs"`
}

// LoadBootstrap loads the given .env files (or ./.env when none are given, ignoring a
// missing file) and parses the environment.
func LoadBootstrap(envFiles ...string) (*Bootstrap, error) {
	_ = godotenv.Load(envFiles...)

	var b Bootstrap
	if err := env.Parse(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// IsProd returns true if the environment is production
func (b *Bootstrap) IsProd() bool {
	return b.Environment == "prod"
}
