// Package transport builds gRPC transport credentials and servers from
// resolved credential bindings.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/sufield/certswap/internal/core/reload"
)

// Factory turns a CredentialBinding into gRPC transport credentials and
// servers. The binding's providers are consulted on every new handshake, so a
// bundle reload is visible to the next connection without rebuilding anything
// here.
type Factory struct {
	logger  *slog.Logger
	metrics reload.MetricsReporter
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger used by the server interceptors.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) { f.logger = logger }
}

// WithMetrics sets the reporter that receives per-handshake validation
// results.
func WithMetrics(metrics reload.MetricsReporter) Option {
	return func(f *Factory) { f.metrics = metrics }
}

// NewFactory creates a transport factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		logger:  slog.Default(),
		metrics: reload.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ServerCredentials builds the transport credentials for a server.
func (f *Factory) ServerCredentials(binding *reload.CredentialBinding) (credentials.TransportCredentials, error) {
	if binding == nil {
		return nil, fmt.Errorf("credential binding cannot be nil")
	}
	if !binding.Enabled() {
		return insecure.NewCredentials(), nil
	}
	return credentials.NewTLS(f.ServerTLSConfig(binding)), nil
}

// ServerTLSConfig builds a server-side tls.Config backed by the binding's
// providers. Certificate selection and, in mutual mode, peer validation go
// through the providers so each handshake sees the current snapshot.
func (f *Factory) ServerTLSConfig(binding *reload.CredentialBinding) *tls.Config {
	cfg := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: binding.Identity.GetCertificate,
	}
	if binding.Mutual() {
		// RequireAnyClientCert defers chain validation to the trust
		// provider, which validates against the snapshot current at
		// handshake time rather than a pool frozen at startup.
		cfg.ClientAuth = tls.RequireAnyClientCert
		cfg.VerifyPeerCertificate = f.countedVerify(binding.Trust.VerifyPeerCertificate)
	} else {
		cfg.ClientAuth = tls.NoClientCert
	}
	return cfg
}

// ClientCredentials builds client-side transport credentials that present the
// binding's identity material and validate the server chain through its trust
// provider. Used by tooling and tests dialing a certswap server.
func (f *Factory) ClientCredentials(binding *reload.CredentialBinding, serverName string) (credentials.TransportCredentials, error) {
	if binding == nil || !binding.Enabled() {
		return insecure.NewCredentials(), nil
	}
	if binding.Trust == nil {
		return nil, fmt.Errorf("client credentials require a trust provider; binding %q is not in secure mode", binding.BundleName)
	}
	cfg := &tls.Config{
		MinVersion:           tls.VersionTLS12,
		GetClientCertificate: binding.Identity.GetClientCertificate,
		ServerName:           serverName,
		// Verification runs through the trust provider so reloaded trust
		// anchors apply to the next dial.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: f.countedVerify(binding.Trust.VerifyServerPeerCertificate),
	}
	return credentials.NewTLS(cfg), nil
}

// NewServer builds a gRPC server with the binding's credentials, keepalive
// enforcement and logging interceptors.
func (f *Factory) NewServer(binding *reload.CredentialBinding, extra ...grpc.ServerOption) (*grpc.Server, error) {
	creds, err := f.ServerCredentials(binding)
	if err != nil {
		return nil, err
	}
	opts := []grpc.ServerOption{
		grpc.Creds(creds),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(f.unaryLogging()),
		grpc.ChainStreamInterceptor(f.streamLogging()),
	}
	opts = append(opts, extra...)
	return grpc.NewServer(opts...), nil
}

func (f *Factory) countedVerify(verify func([][]byte, [][]*x509.Certificate) error) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		err := verify(rawCerts, verifiedChains)
		f.metrics.RecordValidation(err == nil)
		if err != nil {
			f.logger.Debug("peer chain rejected", "error", err)
		}
		return err
	}
}

func (f *Factory) unaryLogging() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		f.logger.Debug("unary call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		return resp, err
	}
}

func (f *Factory) streamLogging() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		f.logger.Debug("stream call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		return err
	}
}
