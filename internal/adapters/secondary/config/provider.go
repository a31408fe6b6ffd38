// Package config loads and validates certswap configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	coreerrors "github.com/sufield/certswap/internal/core/errors"
	"github.com/sufield/certswap/internal/core/ports"
)

// envPrefix is the prefix for environment overrides, e.g.
// CERTSWAP_TLS_BUNDLE overrides tls.bundle.
const envPrefix = "CERTSWAP"

// Provider loads configurations from YAML files with environment overrides.
type Provider struct {
	validate *validator.Validate
}

// NewProvider creates a configuration provider.
func NewProvider() *Provider {
	return &Provider{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load reads the configuration file at path, applies CERTSWAP_* environment
// overrides, and validates the result.
func (p *Provider) Load(path string) (*ports.Configuration, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &coreerrors.ValidationError{
			Field:   "path",
			Value:   path,
			Message: "configuration file path cannot be empty",
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg ports.Configuration
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}

	if err := p.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate runs struct-tag validation and the configuration's own cross-field
// checks.
func (p *Provider) Validate(cfg *ports.Configuration) error {
	if err := p.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &coreerrors.ValidationError{
				Field:   strings.ToLower(strings.TrimPrefix(first.Namespace(), "Configuration.")),
				Value:   first.Value(),
				Message: fmt.Sprintf("failed %q constraint", first.Tag()),
			}
		}
		return err
	}
	return cfg.Validate()
}

// Default returns a configuration with sensible defaults: plaintext gRPC on
// :50051, metrics disabled.
func (p *Provider) Default() *ports.Configuration {
	return &ports.Configuration{
		Server: ports.ServerConfig{Address: ":50051"},
	}
}
