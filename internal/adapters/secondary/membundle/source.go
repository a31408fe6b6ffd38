// Package membundle provides an in-memory MaterialSource for tests and
// embedded use.
package membundle

import (
	"sync"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
	"github.com/sufield/certswap/internal/core/ports"
)

// Source is a mutable in-memory material source. SetBundle replaces a named
// bundle's material and fires registered handlers synchronously on the calling
// goroutine, which makes reload behavior deterministic in tests.
type Source struct {
	mu       sync.RWMutex
	bundles  map[string]*domain.Bundle
	handlers map[string][]ports.BundleUpdateHandler
}

// New creates an empty Source.
func New() *Source {
	return &Source{
		bundles:  make(map[string]*domain.Bundle),
		handlers: make(map[string][]ports.BundleUpdateHandler),
	}
}

// GetBundle returns the current bundle for a name.
func (s *Source) GetBundle(name string) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bundle, ok := s.bundles[name]
	if !ok {
		return nil, errors.ErrBundleNotFound
	}
	return bundle, nil
}

// AddBundleUpdateHandler registers a handler for reloads of the named bundle.
func (s *Source) AddBundleUpdateHandler(name string, handler ports.BundleUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], handler)
}

// SetBundle stores the bundle under a name and, if it replaces existing
// material, notifies every handler registered for that name.
func (s *Source) SetBundle(name string, bundle *domain.Bundle) {
	s.mu.Lock()
	_, reload := s.bundles[name]
	s.bundles[name] = bundle
	handlers := make([]ports.BundleUpdateHandler, len(s.handlers[name]))
	copy(handlers, s.handlers[name])
	s.mu.Unlock()

	if !reload {
		return
	}
	for _, handler := range handlers {
		handler(bundle)
	}
}
