package coreapi

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errors.New("coreapi: invalid config")

// Config holds the core API connection settings
type Config struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APIKey authenticates this integration against core
	APIKey         string `mapstructure:"api_key" validate:"required"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1,lte=300"`
	// MaxResponseBytes bounds how much of a response body is read
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" validate:"gte=1024"`
}

// DefaultConfig returns defaults for everything but the endpoint and key
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:   30,
		MaxResponseBytes: 32 * 1024 * 1024,
	}
}

var configValidator = validator.New()

// Validate checks the config
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
