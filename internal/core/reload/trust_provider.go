package reload

import (
	"crypto/x509"
	"fmt"
	"sync/atomic"

	"github.com/sufield/certswap/internal/core/domain"
	"github.com/sufield/certswap/internal/core/errors"
)

// chainVerifier is the capability set a trust snapshot must provide. The real
// implementation is poolVerifier; tests may supply a stub.
type chainVerifier interface {
	verifyClientChain(chain []*x509.Certificate, authKind string) error
	verifyServerChain(chain []*x509.Certificate, authKind string) error
	acceptedIssuers() []*x509.Certificate
}

// trustSnapshot is one immutable view of the trust material. Replacement is a
// single atomic pointer swap; validations in flight keep the snapshot they
// loaded at entry.
type trustSnapshot struct {
	verifier chainVerifier
}

// ReloadableTrustProvider holds the trust anchors used to validate peer
// certificate chains and exposes the capability surface crypto/tls consults
// during a handshake. It is safe for concurrent use; see Reload for the swap
// contract. A server running without peer validation has no instance at all.
type ReloadableTrustProvider struct {
	current atomic.Pointer[trustSnapshot]
}

// NewTrustProvider creates a provider initialized with the trust material of
// the given bundle. It fails with errors.ErrNoTrustMaterial if the bundle
// carries no trust anchors; this is a fatal configuration error, not retried.
func NewTrustProvider(bundle *domain.Bundle) (*ReloadableTrustProvider, error) {
	snap, err := extractTrustSnapshot(bundle)
	if err != nil {
		return nil, err
	}
	p := &ReloadableTrustProvider{}
	p.current.Store(snap)
	return p, nil
}

// Reload extracts trust material from the bundle exactly as construction does
// and atomically replaces the current snapshot. If extraction fails the
// previous snapshot keeps serving and the error is returned to the caller.
func (p *ReloadableTrustProvider) Reload(bundle *domain.Bundle) error {
	snap, err := extractTrustSnapshot(bundle)
	if err != nil {
		return err
	}
	p.current.Store(snap)
	return nil
}

// ValidateClientChain validates a client's certificate chain (leaf first)
// against the current trust snapshot. A rejection is returned as a
// *errors.ChainValidationError; it is an ordinary per-handshake failure.
func (p *ReloadableTrustProvider) ValidateClientChain(chain []*x509.Certificate, authKind string) error {
	return p.current.Load().verifier.verifyClientChain(chain, authKind)
}

// ValidateServerChain validates a server's certificate chain (leaf first)
// against the current trust snapshot.
func (p *ReloadableTrustProvider) ValidateServerChain(chain []*x509.Certificate, authKind string) error {
	return p.current.Load().verifier.verifyServerChain(chain, authKind)
}

// AcceptedIssuers returns the trust anchors of the current snapshot.
func (p *ReloadableTrustProvider) AcceptedIssuers() []*x509.Certificate {
	return p.current.Load().verifier.acceptedIssuers()
}

// VerifyPeerCertificate validates a client chain from its raw handshake form.
// It can be used as the VerifyPeerCertificate callback of a server-side
// tls.Config combined with tls.RequireAnyClientCert, so that every handshake
// consults the trust snapshot current at that moment.
func (p *ReloadableTrustProvider) VerifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	chain, err := parseChain(rawCerts)
	if err != nil {
		return err
	}
	return p.ValidateClientChain(chain, "tls")
}

// VerifyServerPeerCertificate is the client-side counterpart of
// VerifyPeerCertificate, for tls.Configs dialing out with
// InsecureSkipVerify and provider-backed verification.
func (p *ReloadableTrustProvider) VerifyServerPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	chain, err := parseChain(rawCerts)
	if err != nil {
		return err
	}
	return p.ValidateServerChain(chain, "tls")
}

func parseChain(rawCerts [][]byte) ([]*x509.Certificate, error) {
	if len(rawCerts) == 0 {
		return nil, &errors.ChainValidationError{Reason: "peer presented no certificate"}
	}
	chain := make([]*x509.Certificate, len(rawCerts))
	for i, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, &errors.ChainValidationError{Reason: "peer certificate could not be parsed", Err: err}
		}
		chain[i] = cert
	}
	return chain, nil
}

func extractTrustSnapshot(bundle *domain.Bundle) (*trustSnapshot, error) {
	if bundle == nil || !bundle.HasTrust() {
		name := "<nil>"
		if bundle != nil {
			name = bundle.Name
		}
		return nil, errors.NewDomainError(errors.ErrNoTrustMaterial, fmt.Errorf("bundle %q", name))
	}
	anchors := make([]*x509.Certificate, len(bundle.Trust))
	copy(anchors, bundle.Trust)
	return &trustSnapshot{verifier: &poolVerifier{
		anchors: anchors,
		pool:    bundle.TrustPool(),
	}}, nil
}

// poolVerifier verifies chains against an x509.CertPool built from the trust
// anchors of one bundle.
type poolVerifier struct {
	anchors []*x509.Certificate
	pool    *x509.CertPool
}

func (v *poolVerifier) verifyClientChain(chain []*x509.Certificate, authKind string) error {
	return v.verify(chain, authKind, x509.ExtKeyUsageClientAuth, "client")
}

func (v *poolVerifier) verifyServerChain(chain []*x509.Certificate, authKind string) error {
	return v.verify(chain, authKind, x509.ExtKeyUsageServerAuth, "server")
}

func (v *poolVerifier) verify(chain []*x509.Certificate, authKind string, usage x509.ExtKeyUsage, role string) error {
	if len(chain) == 0 {
		return &errors.ChainValidationError{Reason: fmt.Sprintf("%s presented no certificate", role)}
	}
	opts := x509.VerifyOptions{
		Roots:         v.pool,
		Intermediates: x509.NewCertPool(),
		KeyUsages:     []x509.ExtKeyUsage{usage},
	}
	for _, intermediate := range chain[1:] {
		opts.Intermediates.AddCert(intermediate)
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return &errors.ChainValidationError{
			Reason: fmt.Sprintf("%s chain for %q not trusted (%s)", role, chain[0].Subject.String(), authKind),
			Err:    err,
		}
	}
	return nil
}

func (v *poolVerifier) acceptedIssuers() []*x509.Certificate {
	out := make([]*x509.Certificate, len(v.anchors))
	copy(out, v.anchors)
	return out
}
