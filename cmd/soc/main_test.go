package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatuk/SOC-case-study-project/internal/pipeline"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/ingestion"
)

func setup(t *testing.T) (configPath, datasets, output string) {
	t.Helper()
	root := t.TempDir()
	datasets = filepath.Join(root, "datasets")
	output = filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(datasets, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasets, "identity_provider.jsonl"), []byte(
		`{"timestamp":"2026-01-10T08:40:00Z","user":"jdoe@acmecorp.example.com","event":"login_success","result":"success","session_id":"s-9","src_ip":"185.220.101.45"}`+"\n",
	), 0o644))

	configPath = filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
ioc_lists_dir: `+filepath.Join(root, "ioc_lists")+`
logging:
  level: error
  format: json
metrics:
  enabled: false
`), 0o644))
	return configPath, datasets, output
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"deploy"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"run", "-h"}, &out), flag.ErrHelp)
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.Contains(t, out.String(), "soc dev")
}

func TestRun_Normalize(t *testing.T) {
	cfg, datasets, output := setup(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"normalize", "-config", cfg, "-datasets", datasets, "-output", output}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Normalization complete")
	assert.Contains(t, out.String(), "identity_provider.jsonl")
	assert.FileExists(t, filepath.Join(output, ingestion.EventsFile))
	assert.NoFileExists(t, filepath.Join(output, pipeline.AlertsFile))
}

func TestRun_Pipeline(t *testing.T) {
	cfg, datasets, output := setup(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"run", "-config", cfg, "-datasets", datasets, "-output", output, "-no-export", "-seed", "7"}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Pipeline run complete")
	assert.Contains(t, out.String(), "Alerts (")
	assert.NotContains(t, out.String(), "exported to dashboard")
	for _, name := range []string{pipeline.CorrelationsFile, pipeline.RiskScoresFile, pipeline.AlertsFile} {
		assert.FileExists(t, filepath.Join(output, name))
	}
}

func TestRun_MissingDatasets(t *testing.T) {
	cfg, _, output := setup(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{"run", "-config", cfg, "-datasets", filepath.Join(output, "nope"), "-no-export"}, &out)
	assert.ErrorIs(t, err, ingestion.ErrDatasetsDirMissing)
}
