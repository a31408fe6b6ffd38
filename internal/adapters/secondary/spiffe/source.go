// Package spiffe provides a MaterialSource backed by the SPIFFE Workload API.
// SVIDs map to identity material (alias = SPIFFE ID) and federated bundles to
// trust anchors; the workload API watch stream drives bundle update handlers,
// so SVID rotation flows into the credential core like any other reload.
package spiffe

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
	"github.com/sufield/certswap/internal/core/ports"
)

// DefaultBundleName is the bundle name a workload-API source answers to when
// none is configured.
const DefaultBundleName = "spiffe-workload"

// Config configures a Source.
type Config struct {
	// SocketPath is the workload API address, e.g.
	// "unix:///run/spire/sockets/agent.sock". Empty uses the
	// SPIFFE_ENDPOINT_SOCKET default.
	SocketPath string

	// BundleName is the name the source answers GetBundle for.
	// Defaults to DefaultBundleName.
	BundleName string

	// Logger receives watch errors. Defaults to slog.Default().
	Logger *slog.Logger
}

// Source is a workload-API-backed material source for a single named bundle.
type Source struct {
	name   string
	client *workloadapi.Client
	logger *slog.Logger
	cancel context.CancelFunc

	mu       sync.RWMutex
	current  *domain.Bundle
	handlers []ports.BundleUpdateHandler

	readyOnce sync.Once
	ready     chan struct{}
}

// NewSource connects to the workload API and blocks until the first X.509
// context is received (or ctx expires), so that GetBundle succeeds immediately
// after construction.
func NewSource(ctx context.Context, config Config) (*Source, error) {
	name := config.BundleName
	if name == "" {
		name = DefaultBundleName
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []workloadapi.ClientOption
	if config.SocketPath != "" {
		clientOpts = append(clientOpts, workloadapi.WithAddr(config.SocketPath))
	}
	client, err := workloadapi.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to workload API: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s := &Source{
		name:   name,
		client: client,
		logger: logger,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
	go func() {
		if err := client.WatchX509Context(watchCtx, s); err != nil && status.Code(err) != codes.Canceled {
			logger.Warn("workload API watch terminated", "error", err)
		}
	}()

	select {
	case <-s.ready:
		return s, nil
	case <-ctx.Done():
		cancel()
		_ = client.Close()
		return nil, fmt.Errorf("waiting for initial X.509 context: %w", ctx.Err())
	}
}

// GetBundle returns the current material. Only the configured bundle name is
// known to this source.
func (s *Source) GetBundle(name string) (*domain.Bundle, error) {
	if name != s.name {
		return nil, errors.ErrBundleNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// AddBundleUpdateHandler registers a handler for workload API updates.
func (s *Source) AddBundleUpdateHandler(name string, handler ports.BundleUpdateHandler) {
	if name != s.name {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// OnX509ContextUpdate implements workloadapi.X509ContextWatcher. It converts
// the context into a bundle, publishes it, and notifies handlers. The first
// update unblocks NewSource instead of firing handlers.
func (s *Source) OnX509ContextUpdate(c *workloadapi.X509Context) {
	bundle, err := s.convert(c)
	if err != nil {
		s.logger.Warn("ignoring workload API update, keeping previous material", "error", err)
		return
	}

	s.mu.Lock()
	first := s.current == nil
	s.current = bundle
	handlers := make([]ports.BundleUpdateHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	if first {
		return
	}
	for _, handler := range handlers {
		handler(bundle)
	}
}

// OnX509ContextWatchError implements workloadapi.X509ContextWatcher.
func (s *Source) OnX509ContextWatchError(err error) {
	if status.Code(err) == codes.Canceled {
		return
	}
	s.logger.Warn("workload API watch error", "error", err)
}

// Close stops the watch stream and closes the workload API client.
func (s *Source) Close() error {
	s.cancel()
	return s.client.Close()
}

func (s *Source) convert(c *workloadapi.X509Context) (*domain.Bundle, error) {
	return convertContext(s.name, c)
}

// convertContext maps a workload API X.509 context onto a named bundle.
func convertContext(name string, c *workloadapi.X509Context) (*domain.Bundle, error) {
	identity := make([]*domain.IdentityMaterial, 0, len(c.SVIDs))
	for _, svid := range c.SVIDs {
		m, err := domain.NewIdentityMaterial(svid.ID.String(), svid.Certificates, svid.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("SVID %s: %w", svid.ID, err)
		}
		identity = append(identity, m)
	}

	var trust []*x509.Certificate
	for _, b := range c.Bundles.Bundles() {
		trust = append(trust, b.X509Authorities()...)
	}

	return domain.NewBundle(name, identity, trust)
}
