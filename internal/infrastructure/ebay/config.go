package ebay

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// ProductionAPIURL is the production gateway endpoint
	ProductionAPIURL = "https://api.ebay.com/sell/gateway/v1"
	// SandboxAPIURL is the sandbox gateway endpoint
	SandboxAPIURL = "https://api.sandbox.ebay.com/sell/gateway/v1"

	// SiteGermany is the eBay site id of ebay.de
	SiteGermany = "77"
)

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errors.New("ebay: invalid config")

// Config holds the marketplace connection settings shared by all accounts.
// Per-account credentials live on the account itself.
type Config struct {
	// BaseURL is the API endpoint (production or sandbox)
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// SiteID selects the eBay site listings are created on
	SiteID string `mapstructure:"site_id" validate:"required,numeric"`
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=1,lte=300"`
	// RequestsPerSecond caps the call rate of this process
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=1"`
	// MaxResponseBytes bounds how much of a response body is read
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" validate:"gte=1024"`
}

// DefaultConfig returns a production config for ebay.de
func DefaultConfig() Config {
	return Config{
		BaseURL:           ProductionAPIURL,
		SiteID:            SiteGermany,
		TimeoutSeconds:    30,
		RequestsPerSecond: 5,
		Burst:             10,
		MaxResponseBytes:  10 * 1024 * 1024,
	}
}

var configValidator = validator.New()

// Validate checks the config, naming every offending field
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %v", ErrInvalidConfig, fields)
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
