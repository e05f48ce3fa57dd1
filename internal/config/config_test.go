package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry/correlation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "datasets", cfg.DatasetsDir)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 1000, cfg.Caps.MaxEventsPerFile)
	assert.Equal(t, 2000, cfg.Caps.MaxIOCsPerFile)
	assert.Equal(t, 100, cfg.Caps.MaxErrors)
	assert.Equal(t, correlation.StrategyExhaustive, cfg.Correlation.Strategy)
	assert.True(t, cfg.Pseudonymization.Enabled)

	nets, err := cfg.CorporateNetworks()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("192.168.0.0/16")}, nets)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
datasets_dir: /data/in
seed: 7
reference_time: 2026-01-17T12:00:00Z
caps:
  max_events_per_file: 50
correlation:
  strategy: first_match
corporate:
  domain: corp.example.org
  networks: ["172.16.0.0/12"]
server:
  request_timeout: 5s
  rate_limit_per_minute: 30
forwarding:
  enabled: true
  hec_url: https://splunk.example.org:8088
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/in", cfg.DatasetsDir)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, time.Date(2026, 1, 17, 12, 0, 0, 0, time.UTC), cfg.Reference())
	assert.Equal(t, 50, cfg.Caps.MaxEventsPerFile)
	assert.Equal(t, 2000, cfg.Caps.MaxCSVRows)
	assert.Equal(t, correlation.StrategyFirstMatch, cfg.Correlation.Strategy)
	assert.Equal(t, 60, cfg.Correlation.TravelWindowMinutes)
	assert.Equal(t, "corp.example.org", cfg.Corporate.Domain)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 30, cfg.Server.RateLimitPerMinute)
	assert.True(t, cfg.Server.RateLimitHeaders)
	assert.True(t, cfg.Forwarding.Enabled)
	assert.Equal(t, "https://splunk.example.org:8088", cfg.Forwarding.HECURL)
	assert.Equal(t, 3, cfg.Forwarding.RetryCount)
	assert.Equal(t, "SOC_HEC_TOKEN", cfg.Forwarding.TokenEnv)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAllowRawData, "1")
	t.Setenv(EnvDatasetsDir, "/env/datasets")
	t.Setenv(EnvOutputDir, "/env/output")
	t.Setenv(EnvSeed, "1234")
	t.Setenv("SOC_REDIS_PASSWORD", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Pseudonymization.Enabled)
	assert.Equal(t, "/env/datasets", cfg.DatasetsDir)
	assert.Equal(t, "/env/output", cfg.OutputDir)
	assert.Equal(t, int64(1234), cfg.Seed)
	assert.Equal(t, "s3cret", cfg.Redis.StoreConfig().Password)
	assert.Equal(t, "soc:ioc", cfg.Redis.StoreConfig().KeyPrefix)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "caps: [not, a, map]"))
	assert.ErrorContains(t, err, "failed to parse config")

	t.Setenv(EnvSeed, "forty-two")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero cap", func(c *Config) { c.Caps.MaxErrors = 0 }, "caps.max_errors must be positive"},
		{"unknown strategy", func(c *Config) { c.Correlation.Strategy = "greedy" }, `unknown correlation.strategy "greedy"`},
		{"bad cidr", func(c *Config) { c.Corporate.Networks = []string{"10.0.0.0/33"} }, "corporate.networks"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, `unknown logging.level "trace"`},
		{"bad sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
		{"forwarding without url", func(c *Config) { c.Forwarding.Enabled = true }, "forwarding.hec_url"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMinute = -1 }, "server.rate_limit_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Caps.MaxCSVRows = -1
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "caps.max_csv_rows")
	assert.ErrorContains(t, err, `unknown logging.format "xml"`)
}
