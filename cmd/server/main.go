// Package main serves the outputs of the SOC pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/api"
	"github.com/yatuk/SOC-case-study-project/internal/config"
	"github.com/yatuk/SOC-case-study-project/internal/enrichment"
	"github.com/yatuk/SOC-case-study-project/internal/observability"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults when empty)")
	outputDir := flag.String("output", "", "Directory of pipeline outputs to serve (overrides config)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("soc-server %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "soc-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, outputDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observability.New(ctx, observability.Config{
		ServiceName:    "soc-server",
		ServiceVersion: Version,
		LogLevel:       cfg.Logging.Level,
		LogFormat:      cfg.Logging.Format,
		TracingEnabled: cfg.Tracing.Enabled,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		OTLPInsecure:   cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	logger := tel.Logger()

	var limiter *api.RateLimiter
	if cfg.Server.RateLimitPerMinute > 0 {
		var client *redis.Client
		if cfg.Redis.Enabled {
			client, err = enrichment.NewRedisClient(ctx, cfg.Redis.StoreConfig())
			if err != nil {
				logger.Warn("Redis unavailable, rate limiting in memory", zap.Error(err))
			} else {
				defer client.Close()
			}
		}
		limiter = api.NewRateLimiter(client, api.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RateLimitPerMinute,
			IncludeHeaders:    cfg.Server.RateLimitHeaders,
		}, logger)
	}

	srv := api.NewServer(api.Options{
		OutputDir:      cfg.OutputDir,
		Version:        Version,
		RequestTimeout: cfg.Server.RequestTimeout,
		Limiter:        limiter,
	}, tel.Metrics(), logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			zap.String("addr", server.Addr),
			zap.String("output_dir", cfg.OutputDir),
			zap.String("version", Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
