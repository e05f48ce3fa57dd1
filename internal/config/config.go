// Package config provides configuration management for the SOC pipeline.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/yatuk/SOC-case-study-project/internal/enrichment"
	"github.com/yatuk/SOC-case-study-project/internal/forwarding"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/correlation"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/ingestion"
)

// Environment overrides, read once by Load
const (
	EnvAllowRawData = "SOC_ALLOW_RAW_DATA"
	EnvDatasetsDir  = "SOC_DATASETS_DIR"
	EnvOutputDir    = "SOC_OUTPUT_DIR"
	EnvSeed         = "SOC_SEED"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all pipeline configuration.
type Config struct {
	DatasetsDir      string                       `yaml:"datasets_dir"`
	OutputDir        string                       `yaml:"output_dir"`
	DashboardDir     string                       `yaml:"dashboard_dir"`
	IOCListsDir      string                       `yaml:"ioc_lists_dir"`
	PlaybooksDir     string                       `yaml:"playbooks_dir"`
	Seed             int64                        `yaml:"seed"`
	ReferenceTime    time.Time                    `yaml:"reference_time"`
	Caps             ingestion.Config             `yaml:"caps"`
	Corporate        CorporateConfig              `yaml:"corporate"`
	Correlation      correlation.CorrelatorConfig `yaml:"correlation"`
	Pseudonymization PseudonymizationConfig       `yaml:"pseudonymization"`
	Logging          LoggingConfig                `yaml:"logging"`
	Metrics          MetricsConfig                `yaml:"metrics"`
	Tracing          TracingConfig                `yaml:"tracing"`
	Redis            RedisConfig                  `yaml:"redis"`
	Server           ServerConfig                 `yaml:"server"`
	Forwarding       forwarding.SenderConfig      `yaml:"forwarding"`
}

// CorporateConfig describes what counts as internal to the organization.
type CorporateConfig struct {
	Domain   string   `yaml:"domain"`
	Networks []string `yaml:"networks"`
}

// PseudonymizationConfig holds identifier substitution settings.
type PseudonymizationConfig struct {
	Enabled   bool `yaml:"enabled"`
	CacheSize int  `yaml:"cache_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// MetricsConfig controls the Prometheus textfile written after batch runs.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// RedisConfig holds the shared indicator store connection.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	TLSEnabled  bool          `yaml:"tls_enabled"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`

	password string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RateLimitPerMinute caps API requests per client; 0 disables limiting
	RateLimitPerMinute int  `yaml:"rate_limit_per_minute"`
	RateLimitHeaders   bool `yaml:"rate_limit_headers"`
}

// Load reads configuration from a YAML file over the defaults and applies
// environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DatasetsDir:  "datasets",
		OutputDir:    "output",
		DashboardDir: "dashboard/public/data",
		IOCListsDir:  "ioc_lists",
		Seed:         42,
		Caps:         ingestion.DefaultConfig(),
		Corporate: CorporateConfig{
			Domain:   "acmecorp.example.com",
			Networks: []string{"10.0.0.0/8", "192.168.0.0/16"},
		},
		Correlation: correlation.DefaultConfig(),
		Pseudonymization: PseudonymizationConfig{
			Enabled:   true,
			CacheSize: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:      true,
			TextfilePath: "metrics.prom",
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1.0,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PasswordEnv: "SOC_REDIS_PASSWORD",
			DialTimeout: 5 * time.Second,
			KeyPrefix:   "soc:ioc",
		},
		Forwarding: forwarding.DefaultSenderConfig(),
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			RequestTimeout:     30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 120,
			RateLimitHeaders:   true,
		},
	}
}

func (c *Config) applyEnv() error {
	if os.Getenv(EnvAllowRawData) == "1" {
		c.Pseudonymization.Enabled = false
	}
	if v := os.Getenv(EnvDatasetsDir); v != "" {
		c.DatasetsDir = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvSeed, v)
		}
		c.Seed = seed
	}
	if c.Redis.PasswordEnv != "" {
		c.Redis.password = os.Getenv(c.Redis.PasswordEnv)
	}
	return nil
}

// Validate reports every problem found, each wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.DatasetsDir == "" {
		invalid("datasets_dir is required")
	}
	if c.OutputDir == "" {
		invalid("output_dir is required")
	}
	caps := map[string]int{
		"caps.max_events_per_file": c.Caps.MaxEventsPerFile,
		"caps.max_iocs_per_file":   c.Caps.MaxIOCsPerFile,
		"caps.max_csv_rows":        c.Caps.MaxCSVRows,
		"caps.max_errors":          c.Caps.MaxErrors,
	}
	for _, name := range []string{"caps.max_events_per_file", "caps.max_iocs_per_file", "caps.max_csv_rows", "caps.max_errors"} {
		if caps[name] <= 0 {
			invalid("%s must be positive, got %d", name, caps[name])
		}
	}
	switch c.Correlation.Strategy {
	case correlation.StrategyExhaustive, correlation.StrategyFirstMatch:
	default:
		invalid("unknown correlation.strategy %q", c.Correlation.Strategy)
	}
	if c.Corporate.Domain == "" {
		invalid("corporate.domain is required")
	}
	if _, perr := c.CorporateNetworks(); perr != nil {
		invalid("%v", perr)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		invalid("unknown logging.format %q", c.Logging.Format)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		invalid("tracing.sample_ratio must be within [0,1], got %v", c.Tracing.SampleRatio)
	}
	if c.Forwarding.Enabled && c.Forwarding.HECURL == "" {
		invalid("forwarding.hec_url is required when forwarding is enabled")
	}
	if c.Server.RateLimitPerMinute < 0 {
		invalid("server.rate_limit_per_minute must not be negative, got %d", c.Server.RateLimitPerMinute)
	}
	return err
}

// CorporateNetworks parses the configured corporate CIDRs.
func (c *Config) CorporateNetworks() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Corporate.Networks))
	for _, s := range c.Corporate.Networks {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("corporate.networks: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Reference returns the run's reference time, or now when unset.
func (c *Config) Reference() time.Time {
	if c.ReferenceTime.IsZero() {
		return time.Now().UTC()
	}
	return c.ReferenceTime.UTC()
}

// StoreConfig returns the indicator store connection with the password
// resolved from the environment.
func (r RedisConfig) StoreConfig() enrichment.RedisConfig {
	return enrichment.RedisConfig{
		Addr:        r.Addr,
		Password:    r.password,
		DB:          r.DB,
		TLSEnabled:  r.TLSEnabled,
		DialTimeout: r.DialTimeout,
		KeyPrefix:   r.KeyPrefix,
	}
}
