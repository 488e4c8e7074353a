package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posepipe.yaml")
	yml := `
input: clip.mp4
output: out.mp4
transform: pose
pipeline:
  workers: 7
  drain_timeout: 2s
  failure_policy: skip
  strict: true
pose:
  model: passthrough
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", cfg.Input)
	assert.Equal(t, 7, cfg.Pipeline.Workers)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.DrainTimeout)
	assert.Equal(t, "skip", cfg.Pipeline.FailurePolicy)
	assert.True(t, cfg.Pipeline.Strict)
	assert.Equal(t, "passthrough", cfg.Pose.Model)

	// Untouched keys keep their defaults
	assert.Equal(t, time.Second, cfg.Pipeline.PollTimeout)
	assert.Equal(t, "python3", cfg.Pose.Python)
	require.NoError(t, Validate(cfg))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [not, a, map"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no input", func(c *Config) { c.Input = "" }, "input is required"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers must be >= 1"},
		{"zero drain", func(c *Config) { c.Pipeline.DrainTimeout = 0 }, "drain_timeout"},
		{"bad every", func(c *Config) { c.Pipeline.Every = 0 }, "every must be >= 1"},
		{"negative rate", func(c *Config) { c.Pipeline.FrameRate = -1 }, "frame_rate"},
		{"pose without script", func(c *Config) { c.Transform = "pose"; c.Pose.Script = "" }, "pose.script"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Input, cfg.Output = "in.mp4", "out.mp4"
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
