// Package reload implements the hot-reloadable TLS credential core: providers
// whose material can be swapped at runtime so that every new handshake uses the
// updated material while in-flight connections are unaffected.
package reload

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync/atomic"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
)

// identitySnapshot is one immutable view of the server's identity material.
// Snapshots are never mutated after construction; replacement is a single
// atomic pointer swap, so a handshake reading concurrently with a reload sees
// either the fully-old or the fully-new material, never a mix.
type identitySnapshot struct {
	order   []string
	byAlias map[string]*domain.IdentityMaterial
	certs   map[string]*tls.Certificate
}

// ReloadableIdentityProvider holds the server's own certificate chains and
// private keys and exposes the capability surface crypto/tls consults during a
// handshake. It is safe for concurrent use; see Reload for the swap contract.
type ReloadableIdentityProvider struct {
	current atomic.Pointer[identitySnapshot]
}

// NewIdentityProvider creates a provider initialized with the identity
// material of the given bundle. It fails with errors.ErrNoIdentityMaterial if
// the bundle carries no usable identity material; this is a fatal
// configuration error, not retried.
func NewIdentityProvider(bundle *domain.Bundle) (*ReloadableIdentityProvider, error) {
	snap, err := extractIdentitySnapshot(bundle)
	if err != nil {
		return nil, err
	}
	p := &ReloadableIdentityProvider{}
	p.current.Store(snap)
	return p, nil
}

// Reload extracts identity material from the bundle exactly as construction
// does and atomically replaces the current snapshot. If extraction fails the
// previous snapshot keeps serving and the error is returned to the caller.
func (p *ReloadableIdentityProvider) Reload(bundle *domain.Bundle) error {
	snap, err := extractIdentitySnapshot(bundle)
	if err != nil {
		return err
	}
	p.current.Store(snap)
	return nil
}

// SelectAlias returns the alias of the first identity material matching the
// requested key kind and acceptable CA subjects (raw DER distinguished names,
// as in tls.CertificateRequestInfo.AcceptableCAs). Empty constraints match
// everything. The second return is false when nothing matches.
func (p *ReloadableIdentityProvider) SelectAlias(kind domain.KeyKind, acceptableCAs [][]byte) (string, bool) {
	snap := p.current.Load()
	for _, alias := range snap.order {
		m := snap.byAlias[alias]
		if kind != domain.KeyKindAny && m.KeyKind() != kind {
			continue
		}
		if !chainAcceptable(m.Chain, acceptableCAs) {
			continue
		}
		return alias, true
	}
	return "", false
}

// CertificateChain returns the certificate chain for an alias, or nil if the
// current snapshot has no such alias.
func (p *ReloadableIdentityProvider) CertificateChain(alias string) []*x509.Certificate {
	m := p.current.Load().byAlias[alias]
	if m == nil {
		return nil
	}
	return m.Chain
}

// PrivateKey returns the private key for an alias, or nil if the current
// snapshot has no such alias.
func (p *ReloadableIdentityProvider) PrivateKey(alias string) crypto.Signer {
	m := p.current.Load().byAlias[alias]
	if m == nil {
		return nil
	}
	return m.Key
}

// Aliases returns the aliases of the current snapshot in bundle order.
func (p *ReloadableIdentityProvider) Aliases() []string {
	snap := p.current.Load()
	out := make([]string, len(snap.order))
	copy(out, snap.order)
	return out
}

// Materials returns the identity materials of the current snapshot in bundle
// order. Used by observability adapters to report expiry.
func (p *ReloadableIdentityProvider) Materials() []*domain.IdentityMaterial {
	snap := p.current.Load()
	out := make([]*domain.IdentityMaterial, 0, len(snap.order))
	for _, alias := range snap.order {
		out = append(out, snap.byAlias[alias])
	}
	return out
}

// GetCertificate selects a certificate for a server-side handshake. It can be
// used as the GetCertificate callback of a tls.Config. The whole selection
// operates on one snapshot loaded once at entry.
func (p *ReloadableIdentityProvider) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	snap := p.current.Load()
	if hello != nil {
		for _, alias := range snap.order {
			cert := snap.certs[alias]
			if hello.SupportsCertificate(cert) == nil {
				return cert, nil
			}
		}
	}
	// Nothing matched the ClientHello constraints; present the first chain
	// and let the handshake fail with a precise error on the client side.
	return snap.certs[snap.order[0]], nil
}

// GetClientCertificate selects a certificate for a client-side handshake. It
// can be used as the GetClientCertificate callback of a tls.Config. Per the
// crypto/tls contract it never returns nil; an empty certificate means no
// client certificate is sent.
func (p *ReloadableIdentityProvider) GetClientCertificate(cri *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	snap := p.current.Load()
	for _, alias := range snap.order {
		cert := snap.certs[alias]
		if cri == nil || cri.SupportsCertificate(cert) == nil {
			return cert, nil
		}
	}
	return &tls.Certificate{}, nil
}

func extractIdentitySnapshot(bundle *domain.Bundle) (*identitySnapshot, error) {
	if bundle == nil || !bundle.HasIdentity() {
		name := "<nil>"
		if bundle != nil {
			name = bundle.Name
		}
		return nil, errors.NewDomainError(errors.ErrNoIdentityMaterial, fmt.Errorf("bundle %q", name))
	}
	snap := &identitySnapshot{
		order:   make([]string, 0, len(bundle.Identity)),
		byAlias: make(map[string]*domain.IdentityMaterial, len(bundle.Identity)),
		certs:   make(map[string]*tls.Certificate, len(bundle.Identity)),
	}
	for _, m := range bundle.Identity {
		raw := make([][]byte, len(m.Chain))
		for i, cert := range m.Chain {
			raw[i] = cert.Raw
		}
		snap.order = append(snap.order, m.Alias)
		snap.byAlias[m.Alias] = m
		snap.certs[m.Alias] = &tls.Certificate{
			Certificate: raw,
			PrivateKey:  m.Key,
			Leaf:        m.Leaf(),
		}
	}
	return snap, nil
}

// chainAcceptable reports whether any certificate in the chain was issued by
// one of the acceptable CA subjects. An empty constraint accepts everything.
func chainAcceptable(chain []*x509.Certificate, acceptableCAs [][]byte) bool {
	if len(acceptableCAs) == 0 {
		return true
	}
	for _, cert := range chain {
		for _, ca := range acceptableCAs {
			if bytes.Equal(cert.RawIssuer, ca) {
				return true
			}
		}
	}
	return false
}
