package bundlefile

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// pemFixture is a freshly issued CA plus leaf written out as PEM files.
type pemFixture struct {
	dir      string
	certPath string
	keyPath  string
	caPath   string

	caCert *x509.Certificate
	leaf   *x509.Certificate
	key    *ecdsa.PrivateKey
}

func issuePair(t *testing.T, commonName string) (caCert, leaf *x509.Certificate, caKey, leafKey *ecdsa.PrivateKey) {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName + "-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err = x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano() + 1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caCert, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	leaf, err = x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	return caCert, leaf, caKey, leafKey
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600))
}

// newPEMFixture issues a CA and leaf and writes cert.pem, key.pem and ca.pem
// into a fresh temp dir.
func newPEMFixture(t *testing.T, commonName string) *pemFixture {
	t.Helper()

	caCert, leaf, _, leafKey := issuePair(t, commonName)
	dir := t.TempDir()
	f := &pemFixture{
		dir:      dir,
		certPath: filepath.Join(dir, "cert.pem"),
		keyPath:  filepath.Join(dir, "key.pem"),
		caPath:   filepath.Join(dir, "ca.pem"),
		caCert:   caCert,
		leaf:     leaf,
		key:      leafKey,
	}

	writePEM(t, f.certPath, "CERTIFICATE", leaf.Raw)
	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	require.NoError(t, err)
	writePEM(t, f.keyPath, "PRIVATE KEY", keyDER)
	writePEM(t, f.caPath, "CERTIFICATE", caCert.Raw)

	return f
}

// rotate re-issues the leaf material in place, simulating a certificate
// renewal touching the files on disk.
func (f *pemFixture) rotate(t *testing.T, commonName string) {
	t.Helper()

	caCert, leaf, _, leafKey := issuePair(t, commonName)
	f.caCert = caCert
	f.leaf = leaf
	f.key = leafKey

	writePEM(t, f.certPath, "CERTIFICATE", leaf.Raw)
	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	require.NoError(t, err)
	writePEM(t, f.keyPath, "PRIVATE KEY", keyDER)
	writePEM(t, f.caPath, "CERTIFICATE", caCert.Raw)
}

// newPKCS12Fixture writes a keystore holding leaf, key and CA to a temp file
// and returns its path plus the issued material.
func newPKCS12Fixture(t *testing.T, commonName, password string) (path string, caCert, leaf *x509.Certificate) {
	t.Helper()

	caCert, leaf, _, leafKey := issuePair(t, commonName)
	data, err := pkcs12.Modern.Encode(leafKey, leaf, []*x509.Certificate{caCert}, password)
	require.NoError(t, err)

	path = filepath.Join(t.TempDir(), "bundle.p12")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, caCert, leaf
}
