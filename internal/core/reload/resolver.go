package reload

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
	"github.com/sufield/certswap/internal/core/ports"
)

// Mode is the TLS posture a server runs in. It is chosen exactly once at
// resolution time; reloads replace material within a mode but never cross
// modes.
type Mode string

const (
	// ModePlaintext serves without TLS.
	ModePlaintext Mode = "plaintext"
	// ModeTLS serves one-way TLS: the server presents identity material but
	// performs no peer certificate validation.
	ModeTLS Mode = "tls"
	// ModeMutualTLS serves mutual TLS: peer chains are validated against
	// the trust provider.
	ModeMutualTLS Mode = "mutual-tls"
)

// CredentialBinding is the resolved credential pair handed to the transport
// layer. Identity is nil only in plaintext mode; Trust is nil in plaintext and
// one-way TLS modes, in which case the transport supplies its
// "nothing to verify" posture instead.
type CredentialBinding struct {
	Mode       Mode
	BundleName string
	Identity   *ReloadableIdentityProvider
	Trust      *ReloadableTrustProvider
}

// Enabled reports whether the binding carries TLS credentials at all.
func (b *CredentialBinding) Enabled() bool {
	return b.Mode != ModePlaintext
}

// Mutual reports whether peer certificate validation is enforced.
func (b *CredentialBinding) Mutual() bool {
	return b.Mode == ModeMutualTLS
}

// Resolver builds credential bindings from named bundles and wires bundle
// update notifications into the constructed providers. The material source is
// an injected dependency; the resolver holds no global state.
type Resolver struct {
	source  ports.MaterialSource
	logger  *slog.Logger
	metrics MetricsReporter
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for reload events.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics reporter for reload outcomes and material
// expiry.
func WithMetrics(metrics MetricsReporter) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// NewResolver creates a Resolver backed by the given material source.
func NewResolver(source ports.MaterialSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:  source,
		logger:  slog.Default(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the credential binding for the given TLS settings.
//
// With TLS disabled it returns a plaintext binding without touching the
// material source. With TLS enabled it looks up the named bundle (failing with
// errors.ErrBundleNotFound when absent), always constructs an identity
// provider, constructs a trust provider only in secure mode, and registers
// exactly one bundle update handler that refreshes every provider it
// constructed. Calling Resolve twice for the same bundle registers two
// independent handlers; resolve once per bundle per server.
func (r *Resolver) Resolve(settings *ports.TLSSettings) (*CredentialBinding, error) {
	if settings == nil || !settings.DetermineEnabled() {
		return &CredentialBinding{Mode: ModePlaintext}, nil
	}

	name := strings.TrimSpace(settings.Bundle)
	if name == "" {
		return nil, &errors.ValidationError{
			Field:   "tls.bundle",
			Value:   settings.Bundle,
			Message: "bundle name must not be empty when tls is enabled",
		}
	}

	bundle, err := r.source.GetBundle(name)
	if err != nil {
		return nil, fmt.Errorf("resolving ssl bundle %q: %w", name, err)
	}

	identity, err := NewIdentityProvider(bundle)
	if err != nil {
		return nil, fmt.Errorf("constructing identity provider for bundle %q: %w", name, err)
	}

	binding := &CredentialBinding{
		Mode:       ModeTLS,
		BundleName: name,
		Identity:   identity,
	}
	if settings.DetermineSecure() {
		trust, err := NewTrustProvider(bundle)
		if err != nil {
			return nil, fmt.Errorf("constructing trust provider for bundle %q: %w", name, err)
		}
		binding.Mode = ModeMutualTLS
		binding.Trust = trust
	}

	r.reportExpiry(name, identity)
	r.registerUpdateHandler(name, identity, binding.Trust)
	return binding, nil
}

// registerUpdateHandler wires one bundle update handler that refreshes the
// providers that exist. Registration is a no-op when neither provider was
// constructed.
func (r *Resolver) registerUpdateHandler(name string, identity *ReloadableIdentityProvider, trust *ReloadableTrustProvider) {
	if identity == nil && trust == nil {
		return
	}
	r.source.AddBundleUpdateHandler(name, func(updated *domain.Bundle) {
		event := uuid.NewString()
		r.logger.Info("reloading ssl bundle", "bundle", name, "event_id", event)

		failed := false
		if identity != nil {
			if err := identity.Reload(updated); err != nil {
				failed = true
				r.logger.Warn("identity reload failed, keeping previous material",
					"bundle", name, "event_id", event, "error", err)
			}
		}
		if trust != nil {
			if err := trust.Reload(updated); err != nil {
				failed = true
				r.logger.Warn("trust reload failed, keeping previous material",
					"bundle", name, "event_id", event, "error", err)
			}
		}

		if failed {
			r.metrics.RecordReload(name, "failure")
			return
		}
		r.metrics.RecordReload(name, "success")
		if identity != nil {
			r.reportExpiry(name, identity)
		}
	})
}

func (r *Resolver) reportExpiry(name string, identity *ReloadableIdentityProvider) {
	for _, m := range identity.Materials() {
		r.metrics.UpdateMaterialExpiry(name, m.Alias, float64(m.ExpiresAt().Unix()))
	}
}
