package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/2thetop/scalar/errors"
)

// legacyUnattendedEnv enables unattended mode when set to "1".
const legacyUnattendedEnv = "Scalar_UNATTENDED"

// Load reads, defaults and validates the configuration.
//
//  1. Loads .env from the working directory if present. Existing
//     environment variables win.
//  2. Populates Config from SCALAR_* variables.
//  3. Honors the legacy Scalar_UNATTENDED=1 switch.
//  4. Validates the result.
//
// Failures return INVALID_CONFIGURATION.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to process environment configuration")
	}

	if v, ok := os.LookupEnv(legacyUnattendedEnv); ok && v == "1" {
		cfg.Unattended = true
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "configuration validation failed")
	}

	return &cfg, nil
}
