package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"thumbnail/internal/auth"
	"thumbnail/internal/config"
	"thumbnail/internal/thumbnail"
)

const shutdownTimeout = 10 * time.Second

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %w", thumbnail.ErrConfiguration, err)
	}

	return log.NewWithOptions(os.Stdout, log.Options{
		Level:           lvl,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	}), nil
}

// newAuthEngine builds the write-access policy. It returns nil when no
// credentials are configured.
func newAuthEngine(cfg config.Auth) auth.AuthEngine {
	if !cfg.Enabled() {
		return nil
	}

	var engines []auth.AuthEngine
	if cfg.Username != "" {
		engines = append(engines, auth.NewBasicAuthEngine(cfg.Username, cfg.Password))
	}
	if len(cfg.Tokens) > 0 {
		engines = append(engines, auth.NewTokenAuthEngine(cfg.Tokens...))
	}
	return auth.NewCompoundAuthEngine(engines...)
}

func Run(ctx context.Context) error {

	configPath := flag.String("config", getenv(config.EnvConfig, "thumbnail.yaml"), "path to the YAML configuration file")
	listen := flag.String("listen", "", "HTTP listen address, overrides the configuration")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error), overrides the configuration")
	tlsListen := flag.String("tls-listen", ":8443", "HTTPS listen address")
	tlsCrtFile := flag.String("tls-cert", "", "TLS certificate file, HTTPS is disabled without it")
	tlsKeyFile := flag.String("tls-key", "", "TLS private key file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	handler, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(handler))

	factory := newBackendFactory(ctx, cfg)
	defer func() {
		if err := factory.Close(); err != nil {
			slog.Warn("Closing storages", "err", err)
		}
	}()

	routes, err := thumbnail.BuildRouteTable(cfg.RouteTable(), factory.Create)
	if err != nil {
		return fmt.Errorf("failed to build route table: %w", err)
	}

	opts := []thumbnail.ConfigOption{
		thumbnail.WithRouteTable(routes),
		thumbnail.WithRegisterer(prometheus.DefaultRegisterer),
	}
	if cfg.Metrics {
		opts = append(opts, thumbnail.WithMetrics(prometheus.DefaultGatherer))
	}
	if cfg.MaxUploadSize > 0 {
		opts = append(opts, thumbnail.WithMaxUploadSize(cfg.MaxUploadSize))
	}
	if engine := newAuthEngine(cfg.Auth); engine != nil {
		opts = append(opts, thumbnail.WithAuthEngine(engine))
	}

	server, err := thumbnail.NewServer(thumbnail.NewConfig(opts...))
	if err != nil {
		return fmt.Errorf("failed to create thumbnail server: %w", err)
	}

	router := server.Handler()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	httpsServer := &http.Server{
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Addr:              *tlsListen,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), httpsServer.Shutdown(shutdownCtx))
	})

	eg.Go(func() error {
		if *tlsCrtFile == "" || *tlsKeyFile == "" {
			slog.Debug("Skipping HTTPS service because no certificate was provided")
			return nil
		}

		slog.Info("Starting thumbnail HTTPS server", "addr", *tlsListen)
		err := httpsServer.ListenAndServeTLS(*tlsCrtFile, *tlsKeyFile)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		slog.Info("Starting thumbnail HTTP server", "addr", cfg.Listen)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Thumbnail server started", "routes", routes.RouteNames(), "default_route", routes.DefaultRoute())
	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("Thumbnail server exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
