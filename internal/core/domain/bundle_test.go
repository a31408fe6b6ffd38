package domain

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newECCert(t *testing.T, commonName string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := signSelf(t, commonName, &key.PublicKey, key)
	return cert, key
}

func newEd25519Cert(t *testing.T, commonName string) (*x509.Certificate, ed25519.PrivateKey) {
	t.Helper()

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cert := signSelf(t, commonName, pub, key)
	return cert, key
}

func signSelf(t *testing.T, commonName string, pub, priv any) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestKeyKindOf(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	assert.Equal(t, KeyKindRSA, KeyKindOf(rsaKey))
	assert.Equal(t, KeyKindEC, KeyKindOf(ecKey))
	assert.Equal(t, KeyKindEd25519, KeyKindOf(edKey))
}

func TestNewIdentityMaterial(t *testing.T) {
	cert, key := newECCert(t, "leaf")

	t.Run("valid", func(t *testing.T) {
		m, err := NewIdentityMaterial("server", []*x509.Certificate{cert}, key)
		require.NoError(t, err)
		assert.Equal(t, "server", m.Alias)
		assert.True(t, m.Leaf().Equal(cert))
		assert.Equal(t, KeyKindEC, m.KeyKind())
		assert.Equal(t, cert.NotAfter, m.ExpiresAt())
	})

	t.Run("empty alias", func(t *testing.T) {
		_, err := NewIdentityMaterial("", []*x509.Certificate{cert}, key)
		require.Error(t, err)
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := NewIdentityMaterial("server", nil, key)
		require.Error(t, err)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := NewIdentityMaterial("server", []*x509.Certificate{cert}, nil)
		require.Error(t, err)
	})

	t.Run("mismatched key", func(t *testing.T) {
		otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		_, err = NewIdentityMaterial("server", []*x509.Certificate{cert}, otherKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("ed25519 key match", func(t *testing.T) {
		edCert, edKey := newEd25519Cert(t, "ed-leaf")
		m, err := NewIdentityMaterial("ed", []*x509.Certificate{edCert}, edKey)
		require.NoError(t, err)
		assert.Equal(t, KeyKindEd25519, m.KeyKind())
	})
}

func TestNewBundle(t *testing.T) {
	cert, key := newECCert(t, "leaf")
	m, err := NewIdentityMaterial("server", []*x509.Certificate{cert}, key)
	require.NoError(t, err)
	anchor := signSelfEC(t, "anchor")

	t.Run("valid", func(t *testing.T) {
		b, err := NewBundle("web", []*IdentityMaterial{m}, []*x509.Certificate{anchor})
		require.NoError(t, err)
		assert.True(t, b.HasIdentity())
		assert.True(t, b.HasTrust())
		assert.Equal(t, m, b.ByAlias("server"))
		assert.Nil(t, b.ByAlias("nope"))
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewBundle("", nil, nil)
		require.Error(t, err)
	})

	t.Run("duplicate alias", func(t *testing.T) {
		_, err := NewBundle("web", []*IdentityMaterial{m, m}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate alias")
	})

	t.Run("nil identity entry", func(t *testing.T) {
		_, err := NewBundle("web", []*IdentityMaterial{nil}, nil)
		require.Error(t, err)
	})

	t.Run("nil trust entry", func(t *testing.T) {
		_, err := NewBundle("web", nil, []*x509.Certificate{nil})
		require.Error(t, err)
	})

	t.Run("both sides empty is allowed", func(t *testing.T) {
		b, err := NewBundle("empty", nil, nil)
		require.NoError(t, err)
		assert.False(t, b.HasIdentity())
		assert.False(t, b.HasTrust())
	})
}

func TestTrustPoolIsFreshPerCall(t *testing.T) {
	anchor := signSelfEC(t, "anchor")
	b, err := NewBundle("web", nil, []*x509.Certificate{anchor})
	require.NoError(t, err)

	p1 := b.TrustPool()
	p2 := b.TrustPool()
	assert.NotSame(t, p1, p2)
	assert.True(t, p1.Equal(p2))
}

func signSelfEC(t *testing.T, commonName string) *x509.Certificate {
	t.Helper()
	cert, _ := newECCert(t, commonName)
	return cert
}
