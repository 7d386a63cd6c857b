package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, ok := c.Services.URLs["auth"]; !ok {
		return fmt.Errorf("services.urls must include the auth service")
	}
	return nil
}

// normalize fills derived values after unmarshalling.
func (c *Config) normalize() {
	c.Logger.Level = strings.ToLower(c.Logger.Level)
	if c.Services.AuthToken == "" {
		c.Services.AuthToken = c.Services.Secret
	}
	c.Webhook.BaseURL = strings.TrimRight(c.Webhook.BaseURL, "/")
	for name, url := range c.Services.URLs {
		c.Services.URLs[name] = strings.TrimRight(url, "/")
	}
}

func hasPostgresScheme(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}
