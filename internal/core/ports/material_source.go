// Package ports defines interfaces that represent the application's ports in
// hexagonal architecture, separating the reload core from material source and
// transport adapters.
package ports

import (
	"github.com/sufield/certswap/internal/core/domain"
)

// BundleUpdateHandler is invoked with the new bundle on every reload of a
// named bundle. The invocation goroutine and frequency are owned by the
// material source; handlers must not assume any ordering between invocations.
type BundleUpdateHandler func(bundle *domain.Bundle)

// MaterialSource supplies the current material for named bundles and notifies
// registered handlers when a bundle's material changes.
//
// Implementations must be safe for concurrent use: GetBundle may be called
// from any goroutine, and handlers may be registered while updates are being
// delivered. There is no guarantee that a handler fires before the first
// GetBundle completes; construction always reads the bundle directly.
type MaterialSource interface {
	// GetBundle returns the current material for a named bundle, or
	// errors.ErrBundleNotFound when the name is unknown.
	GetBundle(name string) (*domain.Bundle, error)

	// AddBundleUpdateHandler registers a handler for reloads of the named
	// bundle. Handlers registered for an unknown name are never invoked.
	// Registrations are not deduplicated.
	AddBundleUpdateHandler(name string, handler BundleUpdateHandler)
}
