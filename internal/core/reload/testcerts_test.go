package reload

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sufield/certswap/internal/core/domain"
)

var serialCounter int64 = 1000

// testCA is a throwaway CA for handshake-material tests.
type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

func newTestCA(t *testing.T, commonName string) *testCA {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serialCounter++
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serialCounter),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"certswap test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &testCA{cert: cert, key: key}
}

// issue creates a leaf signed by the CA, suitable for both client and server
// auth.
func (ca *testCA) issue(t *testing.T, commonName string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serialCounter++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serialCounter),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return cert, key
}

// identityBundle builds a bundle with one identity entry per alias, all signed
// by the CA, and the CA as sole trust anchor.
func identityBundle(t *testing.T, ca *testCA, name string, aliases ...string) *domain.Bundle {
	t.Helper()

	materials := make([]*domain.IdentityMaterial, 0, len(aliases))
	for _, alias := range aliases {
		cert, key := ca.issue(t, alias)
		m, err := domain.NewIdentityMaterial(alias, []*x509.Certificate{cert}, key)
		require.NoError(t, err)
		materials = append(materials, m)
	}
	bundle, err := domain.NewBundle(name, materials, []*x509.Certificate{ca.cert})
	require.NoError(t, err)
	return bundle
}

// trustOnlyBundle builds a bundle with trust anchors and no identity material.
func trustOnlyBundle(t *testing.T, name string, anchors ...*x509.Certificate) *domain.Bundle {
	t.Helper()

	bundle, err := domain.NewBundle(name, nil, anchors)
	require.NoError(t, err)
	return bundle
}

// emptyBundle builds a bundle with no material on either side.
func emptyBundle(t *testing.T, name string) *domain.Bundle {
	t.Helper()

	bundle, err := domain.NewBundle(name, nil, nil)
	require.NoError(t, err)
	return bundle
}
