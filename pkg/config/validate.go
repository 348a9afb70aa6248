package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}

	if c.Registry.ProxyURL != "" {
		if _, err := url.Parse(c.Registry.ProxyURL); err != nil {
			errs = append(errs, fmt.Errorf("registry.proxy_url: %w", err))
		}
	}

	for id, pool := range c.Registry.APIKeys {
		if len(pool.APIKey) == 0 {
			errs = append(errs, fmt.Errorf("registry.api_keys[%s]: api_key must not be empty", id))
		}
		for i, key := range pool.APIKey {
			if key == "" {
				errs = append(errs, fmt.Errorf("registry.api_keys[%s]: api_key[%d] is empty", id, i))
			}
		}
		if pool.Provider.Kind == "" {
			errs = append(errs, fmt.Errorf("registry.api_keys[%s]: provider is required", id))
		}
		if pool.Provider.Kind == ProviderCustom && pool.Provider.CustomURL == "" {
			errs = append(errs, fmt.Errorf("registry.api_keys[%s]: custom provider requires a url", id))
		}
	}

	for id, model := range c.Registry.Models {
		if model.Name == "" {
			errs = append(errs, fmt.Errorf("registry.models[%s]: name is required", id))
		}
		if _, ok := c.Registry.APIKeys[model.APIKeyID]; !ok {
			errs = append(errs, fmt.Errorf("registry.models[%s]: api_key_id %q is not defined", id, model.APIKeyID))
		}
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys is required when auth.type is \"apikey\""))
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
	}

	switch c.Storage.Type {
	case "none", "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\", or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	return errors.Join(errs...)
}
