package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/certswap/internal/core/errors"
)

func boolPtr(b bool) *bool { return &b }

func TestDetermineEnabled(t *testing.T) {
	tests := []struct {
		name     string
		settings TLSSettings
		want     bool
	}{
		{"explicitly enabled", TLSSettings{Enabled: boolPtr(true)}, true},
		{"explicitly disabled with bundle", TLSSettings{Enabled: boolPtr(false), Bundle: "web"}, false},
		{"implicit via bundle name", TLSSettings{Bundle: "web"}, true},
		{"implicit without bundle name", TLSSettings{}, false},
		{"blank bundle name", TLSSettings{Bundle: "   "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.DetermineEnabled())
		})
	}
}

func TestDetermineSecure(t *testing.T) {
	tests := []struct {
		name     string
		settings TLSSettings
		want     bool
	}{
		{"defaults to secure", TLSSettings{}, true},
		{"explicitly secure", TLSSettings{Secure: boolPtr(true)}, true},
		{"explicitly insecure", TLSSettings{Secure: boolPtr(false)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.DetermineSecure())
		})
	}
}

func TestConfigurationValidate(t *testing.T) {
	t.Run("nil configuration", func(t *testing.T) {
		var cfg *Configuration
		err := cfg.Validate()
		var verr *errors.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("enabled tls requires bundle name", func(t *testing.T) {
		cfg := &Configuration{
			Server: ServerConfig{Address: ":50051"},
			TLS:    TLSSettings{Enabled: boolPtr(true), Bundle: "  "},
		}
		err := cfg.Validate()
		var verr *errors.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "tls.bundle", verr.Field)
	})

	t.Run("disabled tls needs no bundle", func(t *testing.T) {
		cfg := &Configuration{Server: ServerConfig{Address: ":50051"}}
		require.NoError(t, cfg.Validate())
	})

	t.Run("bundle without material", func(t *testing.T) {
		cfg := &Configuration{
			Server:  ServerConfig{Address: ":50051"},
			Bundles: map[string]BundleConfig{"web": {}},
		}
		err := cfg.Validate()
		var verr *errors.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "bundles.web", verr.Field)
	})

	t.Run("bundle with both material kinds", func(t *testing.T) {
		cfg := &Configuration{
			Server: ServerConfig{Address: ":50051"},
			Bundles: map[string]BundleConfig{
				"web": {
					PEM:    &PEMBundleConfig{Cert: "c", Key: "k"},
					PKCS12: &PKCS12BundleConfig{Path: "p"},
				},
			},
		}
		err := cfg.Validate()
		var verr *errors.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("valid pem bundle", func(t *testing.T) {
		cfg := &Configuration{
			Server: ServerConfig{Address: ":50051"},
			TLS:    TLSSettings{Bundle: "web"},
			Bundles: map[string]BundleConfig{
				"web": {PEM: &PEMBundleConfig{Cert: "c", Key: "k"}},
			},
		}
		require.NoError(t, cfg.Validate())
	})
}
