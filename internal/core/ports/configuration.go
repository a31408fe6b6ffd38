package ports

import (
	"strings"

	"github.com/sufield/certswap/internal/core/errors"
)

// Configuration represents the complete configuration for a certswap server.
type Configuration struct {
	// Server contains the gRPC listener settings.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// TLS controls whether and how the server terminates TLS.
	TLS TLSSettings `mapstructure:"tls"`

	// Bundles declares the file-backed bundles available to the server,
	// keyed by bundle name.
	Bundles map[string]BundleConfig `mapstructure:"bundles" validate:"dive"`

	// Metrics configures the Prometheus exposition listener. Optional.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig contains the gRPC listener settings.
type ServerConfig struct {
	// Address is the listen address, e.g. ":50051".
	Address string `mapstructure:"address" validate:"required,hostname_port"`
}

// MetricsConfig configures the Prometheus exposition listener.
type MetricsConfig struct {
	// Address is the metrics listen address. Empty disables the listener.
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`
}

// TLSSettings carries the TLS switchboard: which bundle backs the server's
// credentials, whether TLS is on at all, and whether peer certificates are
// validated (mutual TLS) or not (one-way TLS).
type TLSSettings struct {
	// Enabled switches TLS on or off. When unset, TLS is enabled exactly
	// when a bundle name is configured.
	Enabled *bool `mapstructure:"enabled"`

	// Bundle names the ssl bundle backing the server credentials.
	// Required when TLS is enabled.
	Bundle string `mapstructure:"bundle"`

	// Secure controls peer certificate validation. Defaults to true
	// (mutual TLS); set to false for one-way TLS.
	Secure *bool `mapstructure:"secure"`
}

// DetermineEnabled reports whether TLS is in effect: the explicit Enabled flag
// when set, otherwise whether a bundle name is configured.
func (s *TLSSettings) DetermineEnabled() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return strings.TrimSpace(s.Bundle) != ""
}

// DetermineSecure reports whether peer certificate validation is enforced.
// Defaults to true.
func (s *TLSSettings) DetermineSecure() bool {
	if s.Secure != nil {
		return *s.Secure
	}
	return true
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Configuration) Validate() error {
	if c == nil {
		return &errors.ValidationError{
			Field:   "configuration",
			Value:   nil,
			Message: "configuration cannot be nil",
		}
	}
	if c.TLS.DetermineEnabled() && strings.TrimSpace(c.TLS.Bundle) == "" {
		return &errors.ValidationError{
			Field:   "tls.bundle",
			Value:   c.TLS.Bundle,
			Message: "bundle name is required when tls is enabled",
		}
	}
	for name, bundle := range c.Bundles {
		if err := bundle.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// BundleConfig declares where a file-backed bundle's material lives. Exactly
// one of PEM or PKCS12 must be set.
type BundleConfig struct {
	// PEM points at PEM-encoded certificate, key and CA files.
	PEM *PEMBundleConfig `mapstructure:"pem"`

	// PKCS12 points at a PKCS#12 keystore.
	PKCS12 *PKCS12BundleConfig `mapstructure:"pkcs12"`

	// Watch enables file watching so the bundle reloads when its backing
	// files change on disk.
	Watch bool `mapstructure:"watch"`
}

// PEMBundleConfig points at PEM-encoded material on disk.
type PEMBundleConfig struct {
	// Cert is the certificate chain file (leaf first).
	Cert string `mapstructure:"cert" validate:"required"`

	// Key is the private key file (PKCS#1, PKCS#8 or SEC 1).
	Key string `mapstructure:"key" validate:"required"`

	// CA is the trust anchor file. Optional; a bundle without trust
	// material can still back a one-way TLS server.
	CA string `mapstructure:"ca"`

	// Alias names the identity material entry. Defaults to "default".
	Alias string `mapstructure:"alias"`
}

// PKCS12BundleConfig points at a PKCS#12 keystore on disk.
type PKCS12BundleConfig struct {
	// Path is the keystore file.
	Path string `mapstructure:"path" validate:"required"`

	// Password decrypts the keystore. May be empty for passwordless stores.
	Password string `mapstructure:"password"`

	// Alias names the identity material entry. Defaults to "default".
	Alias string `mapstructure:"alias"`
}

func (b *BundleConfig) validate(name string) error {
	switch {
	case b.PEM == nil && b.PKCS12 == nil:
		return &errors.ValidationError{
			Field:   "bundles." + name,
			Value:   nil,
			Message: "bundle must declare either pem or pkcs12 material",
		}
	case b.PEM != nil && b.PKCS12 != nil:
		return &errors.ValidationError{
			Field:   "bundles." + name,
			Value:   nil,
			Message: "bundle cannot declare both pem and pkcs12 material",
		}
	}
	return nil
}
