// Package bundlefile provides a file-backed MaterialSource: named bundles
// loaded from PEM files or PKCS#12 keystores, optionally reloaded when the
// backing files change on disk.
package bundlefile

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
	"github.com/sufield/certswap/internal/core/ports"
)

const defaultAlias = "default"

// bundleState tracks one named bundle: its declaration, its current material
// and the handlers to notify on reload.
type bundleState struct {
	config   ports.BundleConfig
	current  *domain.Bundle
	handlers []ports.BundleUpdateHandler
}

// Source is a file-backed material source. All bundles are loaded eagerly at
// construction so that a malformed declaration fails startup instead of the
// first handshake.
type Source struct {
	mu      sync.RWMutex
	bundles map[string]*bundleState
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger used for reload outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// New creates a Source from bundle declarations, loading every bundle from
// disk. A bundle that cannot be loaded is a fatal configuration error.
func New(configs map[string]ports.BundleConfig, opts ...Option) (*Source, error) {
	s := &Source{
		bundles: make(map[string]*bundleState, len(configs)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for name, config := range configs {
		bundle, err := loadBundle(name, config)
		if err != nil {
			return nil, fmt.Errorf("loading bundle %q: %w", name, err)
		}
		s.bundles[name] = &bundleState{config: config, current: bundle}
	}
	return s, nil
}

// GetBundle returns the current material for a named bundle.
func (s *Source) GetBundle(name string) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.bundles[name]
	if !ok {
		return nil, errors.ErrBundleNotFound
	}
	return state.current, nil
}

// AddBundleUpdateHandler registers a handler for reloads of the named bundle.
func (s *Source) AddBundleUpdateHandler(name string, handler ports.BundleUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.bundles[name]
	if !ok {
		return
	}
	state.handlers = append(state.handlers, handler)
}

// Reload re-reads a bundle's backing files and notifies its handlers. A
// malformed on-disk state is logged and the previous material kept; the server
// keeps serving stale-but-valid material rather than going dark.
func (s *Source) Reload(name string) error {
	s.mu.RLock()
	state, ok := s.bundles[name]
	s.mu.RUnlock()
	if !ok {
		return errors.ErrBundleNotFound
	}

	bundle, err := loadBundle(name, state.config)
	if err != nil {
		s.logger.Warn("bundle reload failed, keeping previous material", "bundle", name, "error", err)
		return err
	}

	s.mu.Lock()
	state.current = bundle
	handlers := make([]ports.BundleUpdateHandler, len(state.handlers))
	copy(handlers, state.handlers)
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(bundle)
	}
	return nil
}

// watchedFiles returns, per bundle name, the files whose changes should
// trigger a reload. Only bundles declared with watch: true are included.
func (s *Source) watchedFiles() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string)
	for name, state := range s.bundles {
		if !state.config.Watch {
			continue
		}
		switch {
		case state.config.PEM != nil:
			files := []string{state.config.PEM.Cert, state.config.PEM.Key}
			if state.config.PEM.CA != "" {
				files = append(files, state.config.PEM.CA)
			}
			out[name] = files
		case state.config.PKCS12 != nil:
			out[name] = []string{state.config.PKCS12.Path}
		}
	}
	return out
}

func loadBundle(name string, config ports.BundleConfig) (*domain.Bundle, error) {
	switch {
	case config.PEM != nil:
		return loadPEMBundle(name, config.PEM)
	case config.PKCS12 != nil:
		return loadPKCS12Bundle(name, config.PKCS12)
	default:
		return nil, fmt.Errorf("bundle declares neither pem nor pkcs12 material")
	}
}

func loadPEMBundle(name string, config *ports.PEMBundleConfig) (*domain.Bundle, error) {
	chain, err := readPEMCertificates(config.Cert)
	if err != nil {
		return nil, fmt.Errorf("reading certificate chain: %w", err)
	}
	key, err := readPEMPrivateKey(config.Key)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	var trust []*x509.Certificate
	if config.CA != "" {
		trust, err = readPEMCertificates(config.CA)
		if err != nil {
			return nil, fmt.Errorf("reading trust anchors: %w", err)
		}
	}

	alias := config.Alias
	if alias == "" {
		alias = defaultAlias
	}
	identity, err := domain.NewIdentityMaterial(alias, chain, key)
	if err != nil {
		return nil, err
	}
	return domain.NewBundle(name, []*domain.IdentityMaterial{identity}, trust)
}

func loadPKCS12Bundle(name string, config *ports.PKCS12BundleConfig) (*domain.Bundle, error) {
	data, err := os.ReadFile(config.Path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	key, leaf, cas, err := pkcs12.DecodeChain(data, config.Password)
	if err != nil {
		return nil, fmt.Errorf("decoding keystore: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("keystore private key of type %T is not a crypto.Signer", key)
	}

	chain := append([]*x509.Certificate{leaf}, cas...)
	// CA entries double as trust anchors, matching the single-keystore
	// bundle layout PKCS#12 stores commonly use.
	var trust []*x509.Certificate
	for _, ca := range cas {
		if ca.IsCA {
			trust = append(trust, ca)
		}
	}

	alias := config.Alias
	if alias == "" {
		alias = defaultAlias
	}
	identity, err := domain.NewIdentityMaterial(alias, chain, signer)
	if err != nil {
		return nil, err
	}
	return domain.NewBundle(name, []*domain.IdentityMaterial{identity}, trust)
}

func readPEMCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate from %s: %w", path, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return certs, nil
}

func readPEMPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing PKCS#8 key from %s: %w", path, err)
			}
			signer, ok := key.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("private key of type %T is not a crypto.Signer", key)
			}
			return signer, nil
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing PKCS#1 key from %s: %w", path, err)
			}
			return key, nil
		case "EC PRIVATE KEY":
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing EC key from %s: %w", path, err)
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("no private key found in %s", path)
}
