// Package certswap is the public API for embedding hot-reloadable TLS
// credentials into a gRPC server. It re-exports the credential core and the
// built-in material sources; the internal packages stay private.
//
// Typical use:
//
//	source, err := certswap.NewFileSource(bundles)
//	resolver := certswap.NewResolver(source)
//	binding, err := resolver.Resolve(&settings)
//	creds, err := certswap.NewTransportFactory().ServerCredentials(binding)
package certswap

import (
	"crypto"
	"crypto/x509"
	"log/slog"

	"github.com/sufield/certswap/internal/adapters/secondary/bundlefile"
	"github.com/sufield/certswap/internal/adapters/secondary/membundle"
	"github.com/sufield/certswap/internal/adapters/secondary/transport"
	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
	"github.com/sufield/certswap/internal/core/ports"
	"github.com/sufield/certswap/internal/core/reload"
)

// Core types.
type (
	Bundle                     = domain.Bundle
	IdentityMaterial           = domain.IdentityMaterial
	KeyKind                    = domain.KeyKind
	MaterialSource             = ports.MaterialSource
	BundleUpdateHandler        = ports.BundleUpdateHandler
	TLSSettings                = ports.TLSSettings
	BundleConfig               = ports.BundleConfig
	CredentialBinding          = reload.CredentialBinding
	Resolver                   = reload.Resolver
	Mode                       = reload.Mode
	ReloadableIdentityProvider = reload.ReloadableIdentityProvider
	ReloadableTrustProvider    = reload.ReloadableTrustProvider
	MetricsReporter            = reload.MetricsReporter
	TransportFactory           = transport.Factory
	FileSource                 = bundlefile.Source
	FileWatcher                = bundlefile.Watcher
	MemorySource               = membundle.Source
)

// TLS postures.
const (
	ModePlaintext = reload.ModePlaintext
	ModeTLS       = reload.ModeTLS
	ModeMutualTLS = reload.ModeMutualTLS
)

// Error sentinels; match with errors.Is.
var (
	ErrBundleNotFound     = errors.ErrBundleNotFound
	ErrNoIdentityMaterial = errors.ErrNoIdentityMaterial
	ErrNoTrustMaterial    = errors.ErrNoTrustMaterial
)

// NewBundle creates a named bundle from identity and trust material.
func NewBundle(name string, identity []*IdentityMaterial, trust []*x509.Certificate) (*Bundle, error) {
	return domain.NewBundle(name, identity, trust)
}

// NewIdentityMaterial creates a validated identity material entry.
func NewIdentityMaterial(alias string, chain []*x509.Certificate, key crypto.Signer) (*IdentityMaterial, error) {
	return domain.NewIdentityMaterial(alias, chain, key)
}

// NewResolver creates a resolver backed by the given material source.
func NewResolver(source MaterialSource, opts ...reload.ResolverOption) *Resolver {
	return reload.NewResolver(source, opts...)
}

// WithResolverLogger sets the resolver's logger.
func WithResolverLogger(logger *slog.Logger) reload.ResolverOption {
	return reload.WithLogger(logger)
}

// WithResolverMetrics sets the resolver's metrics reporter.
func WithResolverMetrics(metrics MetricsReporter) reload.ResolverOption {
	return reload.WithMetrics(metrics)
}

// NewFileSource creates a file-backed material source from bundle
// declarations.
func NewFileSource(bundles map[string]BundleConfig, opts ...bundlefile.Option) (*FileSource, error) {
	return bundlefile.New(bundles, opts...)
}

// NewFileWatcher creates a watcher reloading the source's watched bundles on
// file changes. It returns nil when no bundle is watched.
func NewFileWatcher(source *FileSource, opts ...bundlefile.WatcherOption) (*FileWatcher, error) {
	return bundlefile.NewWatcher(source, opts...)
}

// NewMemorySource creates an in-memory material source.
func NewMemorySource() *MemorySource {
	return membundle.New()
}

// NewTransportFactory creates a factory building gRPC credentials and servers
// from bindings.
func NewTransportFactory(opts ...transport.Option) *TransportFactory {
	return transport.NewFactory(opts...)
}
