package storage

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errors.New("storage: invalid configuration")

var configValidator = validator.New()

// Config configures the S3 compatible snapshot archive
type Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket" validate:"required"`
	AccessKey    string `mapstructure:"access_key" validate:"required"`
	SecretKey    string `mapstructure:"secret_key" validate:"required"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	Prefix       string `mapstructure:"prefix"`
}

// DefaultConfig returns a disabled archive pointing at a local MinIO
func DefaultConfig() Config {
	return Config{
		Endpoint:     "http://localhost:9000",
		Region:       "us-east-1",
		Bucket:       "ebaysync-snapshots",
		UsePathStyle: true,
		Prefix:       "snapshots",
	}
}

// Validate checks the fields needed to build a client
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
