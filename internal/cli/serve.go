package cli

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sufield/certswap/internal/adapters/metrics"
	"github.com/sufield/certswap/internal/adapters/secondary/bundlefile"
	configadapter "github.com/sufield/certswap/internal/adapters/secondary/config"
	"github.com/sufield/certswap/internal/adapters/secondary/transport"
	"github.com/sufield/certswap/internal/core/ports"
	"github.com/sufield/certswap/internal/core/reload"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC server with hot-reloadable TLS credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveConfigPath)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "certswap.yaml", "path to the configuration file")
}

func runServe(configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := configadapter.NewProvider().Load(configPath)
	if err != nil {
		return err
	}

	source, err := bundlefile.New(cfg.Bundles, bundlefile.WithLogger(logger))
	if err != nil {
		return err
	}
	watcher, err := bundlefile.NewWatcher(source, bundlefile.WithWatcherLogger(logger))
	if err != nil {
		return err
	}
	if watcher != nil {
		watcher.Start()
		defer watcher.Close()
	}

	reporter := metrics.NewPrometheusMetrics()
	resolver := reload.NewResolver(source, reload.WithLogger(logger), reload.WithMetrics(reporter))
	binding, err := resolver.Resolve(&cfg.TLS)
	if err != nil {
		return fmt.Errorf("resolving server credentials: %w", err)
	}
	logger.Info("credentials resolved", "mode", binding.Mode, "bundle", binding.BundleName)

	factory := transport.NewFactory(transport.WithLogger(logger), transport.WithMetrics(reporter))
	server, err := factory.NewServer(binding)
	if err != nil {
		return err
	}
	healthpb.RegisterHealthServer(server, health.NewServer())

	listener, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Address, err)
	}

	metricsServer := startMetricsServer(cfg.Metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "address", cfg.Server.Address)
		errCh <- server.Serve(listener)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		server.GracefulStop()
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		return nil
	}
}

func startMetricsServer(cfg ports.MetricsConfig, logger *slog.Logger) *http.Server {
	if cfg.Address == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	return srv
}
