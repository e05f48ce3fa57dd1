// Package main is the command line entry point for the SOC pipeline.
//
// Usage:
//
//	soc normalize [flags]   normalize datasets into events, IOCs and a profile
//	soc run [flags]         normalize, enrich, correlate, score and detect
//	soc version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yatuk/SOC-case-study-project/internal/config"
	"github.com/yatuk/SOC-case-study-project/internal/observability"
	"github.com/yatuk/SOC-case-study-project/internal/pipeline"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var errUsage = errors.New("usage: soc <normalize|run|version> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "soc: %v\n", err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath string
	datasets   string
	output     string
	dashboard  string
	seed       int64
	noExport   bool
}

func parseFlags(name string, args []string) (*options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (defaults when empty)")
	fs.StringVar(&opts.datasets, "datasets", "", "Input datasets directory (overrides config)")
	fs.StringVar(&opts.output, "output", "", "Output directory (overrides config)")
	fs.StringVar(&opts.dashboard, "dashboard", "", "Dashboard data directory (overrides config)")
	fs.Int64Var(&opts.seed, "seed", 0, "Seed for alert IDs (overrides config when non-zero)")
	fs.BoolVar(&opts.noExport, "no-export", false, "Skip copying outputs to the dashboard directory")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.datasets != "" {
		cfg.DatasetsDir = opts.datasets
	}
	if opts.output != "" {
		cfg.OutputDir = opts.output
	}
	if opts.dashboard != "" {
		cfg.DashboardDir = opts.dashboard
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}
	if opts.noExport {
		cfg.DashboardDir = ""
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	if cmd == "version" {
		fmt.Fprintf(out, "soc %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		return nil
	}
	if cmd != "normalize" && cmd != "run" {
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}

	opts, err := parseFlags(cmd, rest)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	tel, err := observability.New(ctx, observability.Config{
		ServiceName:    "soc",
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

	p, err := pipeline.New(cfg, tel)
	if err != nil {
		return err
	}

	if cmd == "normalize" {
		start := time.Now()
		res, err := p.Normalize(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderNormalize(cfg.OutputDir, res.Profile, time.Since(start)))
		return nil
	}

	sum, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderSummary(sum))
	return nil
}
