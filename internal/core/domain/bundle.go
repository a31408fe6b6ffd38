// Package domain holds the credential material value objects shared by the
// reload core and the material source adapters.
package domain

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"
)

// KeyKind discriminates private key algorithms during alias selection.
type KeyKind string

const (
	KeyKindRSA     KeyKind = "RSA"
	KeyKindEC      KeyKind = "EC"
	KeyKindEd25519 KeyKind = "Ed25519"
	// KeyKindAny matches every key algorithm.
	KeyKindAny KeyKind = ""
)

// KeyKindOf returns the KeyKind of a private key.
func KeyKindOf(key crypto.Signer) KeyKind {
	switch key.Public().(type) {
	case *rsa.PublicKey:
		return KeyKindRSA
	case *ecdsa.PublicKey:
		return KeyKindEC
	case ed25519.PublicKey:
		return KeyKindEd25519
	default:
		return KeyKindAny
	}
}

// IdentityMaterial is one certificate chain and private key a server can
// present during a handshake, addressed by alias.
type IdentityMaterial struct {
	Alias string
	Chain []*x509.Certificate // leaf first
	Key   crypto.Signer
}

// NewIdentityMaterial creates a validated IdentityMaterial.
func NewIdentityMaterial(alias string, chain []*x509.Certificate, key crypto.Signer) (*IdentityMaterial, error) {
	if alias == "" {
		return nil, fmt.Errorf("identity material alias cannot be empty")
	}
	if len(chain) == 0 || chain[0] == nil {
		return nil, fmt.Errorf("identity material %q has no certificate chain", alias)
	}
	if key == nil {
		return nil, fmt.Errorf("identity material %q has no private key", alias)
	}
	if err := verifyKeyMatch(chain[0], key); err != nil {
		return nil, fmt.Errorf("identity material %q: %w", alias, err)
	}
	return &IdentityMaterial{Alias: alias, Chain: chain, Key: key}, nil
}

// Leaf returns the end-entity certificate of the chain.
func (m *IdentityMaterial) Leaf() *x509.Certificate {
	return m.Chain[0]
}

// KeyKind returns the algorithm of the private key.
func (m *IdentityMaterial) KeyKind() KeyKind {
	return KeyKindOf(m.Key)
}

// ExpiresAt returns the leaf certificate's expiration time.
func (m *IdentityMaterial) ExpiresAt() time.Time {
	return m.Chain[0].NotAfter
}

// verifyKeyMatch verifies that the private key matches the certificate's
// public key for the supported algorithms.
func verifyKeyMatch(cert *x509.Certificate, key crypto.Signer) error {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := key.Public().(*rsa.PublicKey)
		if !ok || !pub.Equal(priv) {
			return fmt.Errorf("private key does not match certificate public key")
		}
	case *ecdsa.PublicKey:
		priv, ok := key.Public().(*ecdsa.PublicKey)
		if !ok || !pub.Equal(priv) {
			return fmt.Errorf("private key does not match certificate public key")
		}
	case ed25519.PublicKey:
		priv, ok := key.Public().(ed25519.PublicKey)
		if !ok || !pub.Equal(priv) {
			return fmt.Errorf("private key does not match certificate public key")
		}
	}
	return nil
}

// Bundle is a named, immutable set of identity and trust material. The material
// a name resolves to can change over the bundle's lifetime; a replacement is
// always a whole new Bundle value, never an in-place mutation.
type Bundle struct {
	Name     string
	Identity []*IdentityMaterial
	Trust    []*x509.Certificate
}

// NewBundle creates a Bundle. Either side may be empty; the reload core decides
// per provider whether absent material is an error.
func NewBundle(name string, identity []*IdentityMaterial, trust []*x509.Certificate) (*Bundle, error) {
	if name == "" {
		return nil, fmt.Errorf("bundle name cannot be empty")
	}
	seen := make(map[string]struct{}, len(identity))
	for _, m := range identity {
		if m == nil {
			return nil, fmt.Errorf("bundle %q contains nil identity material", name)
		}
		if _, dup := seen[m.Alias]; dup {
			return nil, fmt.Errorf("bundle %q contains duplicate alias %q", name, m.Alias)
		}
		seen[m.Alias] = struct{}{}
	}
	for i, cert := range trust {
		if cert == nil {
			return nil, fmt.Errorf("bundle %q trust certificate at index %d is nil", name, i)
		}
	}
	return &Bundle{Name: name, Identity: identity, Trust: trust}, nil
}

// HasIdentity reports whether the bundle carries any identity material.
func (b *Bundle) HasIdentity() bool {
	return len(b.Identity) > 0
}

// HasTrust reports whether the bundle carries any trust anchors.
func (b *Bundle) HasTrust() bool {
	return len(b.Trust) > 0
}

// ByAlias returns the identity material for an alias, or nil.
func (b *Bundle) ByAlias(alias string) *IdentityMaterial {
	for _, m := range b.Identity {
		if m.Alias == alias {
			return m
		}
	}
	return nil
}

// TrustPool creates a fresh x509.CertPool from the trust anchors. A new pool is
// built on every call to support reload scenarios where trust material changes.
func (b *Bundle) TrustPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, cert := range b.Trust {
		pool.AddCert(cert)
	}
	return pool
}
