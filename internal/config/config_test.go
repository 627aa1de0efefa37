package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dumpsift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Rules.UseDefaults)
	assert.Equal(t, "standard", cfg.Output.Verbosity)
	assert.Equal(t, compactor.Standard, cfg.Verbosity())
	assert.Equal(t, pipeline.DefaultConfig(), cfg.Pipeline())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
parse:
  workers: 2
  timezone: Asia/Seoul
  case_budget: 30s
timeline:
  bucket_width: 10s
  spike_multiplier: 3
rules:
  path: /etc/dumpsift/rules.yaml
  required: true
output:
  verbosity: minimal
  summary_path: out/summary.json
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Parse.Workers)
	assert.Equal(t, "Asia/Seoul", cfg.Parse.TimeZone)
	assert.Equal(t, 30*time.Second, cfg.Parse.CaseBudget)
	assert.Equal(t, 10*time.Second, cfg.Timeline.BucketWidth)
	assert.Equal(t, 3.0, cfg.Timeline.SpikeMultiplier)
	assert.Equal(t, 5, cfg.Timeline.SpikeWindow, "unset keys keep defaults")
	assert.True(t, cfg.Rules.Required)
	assert.Equal(t, compactor.Minimal, cfg.Verbosity())
	assert.Equal(t, "json", cfg.Log.Format)

	pc := cfg.Pipeline()
	assert.Equal(t, 30*time.Second, pc.CaseBudget)
	assert.Equal(t, 10*time.Second, pc.Timeline.BucketWidth)
}

func TestLoad_FileFromEnv(t *testing.T) {
	t.Setenv(EnvConfig, writeFile(t, "parse:\n  workers: 7\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Parse.Workers)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeFile(t, "parse:\n  wrokers: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "parse:\n  workers: 2\noutput:\n  verbosity: minimal\n")
	t.Setenv("DUMPSIFT_WORKERS", "12")
	t.Setenv("DUMPSIFT_VERBOSITY", "full")
	t.Setenv("DUMPSIFT_PRETTY", "true")
	t.Setenv("DUMPSIFT_BUCKET_WIDTH", "2m")
	t.Setenv("DUMPSIFT_HISTORY", "/var/lib/dumpsift/history")
	t.Setenv("DUMPSIFT_APPEND_EVENTS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Parse.Workers)
	assert.Equal(t, compactor.Full, cfg.Verbosity())
	assert.True(t, cfg.Output.Pretty)
	assert.Equal(t, 2*time.Minute, cfg.Timeline.BucketWidth)
	assert.Equal(t, "/var/lib/dumpsift/history", cfg.History.Path)
	assert.True(t, cfg.Output.Append)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv("DUMPSIFT_WORKERS", "many")
	t.Setenv("DUMPSIFT_PRETTY", "sometimes")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DUMPSIFT_WORKERS")
	assert.Contains(t, err.Error(), "DUMPSIFT_PRETTY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"workers", func(c *Config) { c.Parse.Workers = 0 }, "parse.workers"},
		{"threshold", func(c *Config) { c.Parse.Threshold = 1.5 }, "parse.classify_threshold"},
		{"verbosity", func(c *Config) { c.Output.Verbosity = "loud" }, "output.verbosity"},
		{"spike multiplier", func(c *Config) { c.Timeline.SpikeMultiplier = 1 }, "timeline.spike_multiplier"},
		{"bucket width", func(c *Config) { c.Timeline.BucketWidth = 0 }, "timeline.bucket_width"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"timezone", func(c *Config) { c.Parse.TimeZone = "Mars/Olympus" }, "parse.timezone"},
		{"rules", func(c *Config) { c.Rules.UseDefaults = false; c.Rules.Required = true }, "rules.required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Parse.Workers = -1
	cfg.Output.Verbosity = "loud"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"parse.workers", "output.verbosity", "log.format"} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %v", want, msg)
	}
}
