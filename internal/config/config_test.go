package config_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/refinenet/internal/config"
	"github.com/born-ml/refinenet/internal/integrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestPrecedence(t *testing.T) {
	path := writeFile(t, "lr: 0.01\nepochs: 5\nscheme: rk4\n")

	// Flags are parsed into a throwaway Config first, as the CLI does, so
	// that -config can name the file.
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	config.Default().BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-epochs", "7", "-adjoint"}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, 0.01, cfg.LR, "yaml overrides default")
	assert.Equal(t, 7, cfg.Epochs, "flag overrides yaml")
	assert.Equal(t, "rk4", cfg.Scheme, "yaml survives unset flags")
	assert.True(t, cfg.UseAdjoint)
	assert.Equal(t, config.Default().BatchSize, cfg.BatchSize, "default survives")
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "learning_rate: 0.1\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"model", func(c *config.Config) { c.Model = "resnet" }},
		{"task", func(c *config.Config) { c.Task = "segment" }},
		{"conv regress", func(c *config.Config) { c.Model, c.Task = "conv", "regress" }},
		{"activation", func(c *config.Config) { c.Activation = "gelu" }},
		{"scheme", func(c *config.Config) { c.Scheme = "dopri5" }},
		{"time_d", func(c *config.Config) { c.TimeD = 0 }},
		{"n_time_steps", func(c *config.Config) { c.NTimeSteps = -1 }},
		{"lr", func(c *config.Config) { c.LR = 0 }},
		{"classes", func(c *config.Config) { c.OutDim = 1 }},
		{"regress dims", func(c *config.Config) { c.Task = "regress" }},
		{"conv image", func(c *config.Config) { c.Model, c.ImageSize = "conv", 0 }},
		{"device", func(c *config.Config) { c.Device = "tpu" }},
		{"skip dims", func(c *config.Config) { c.Model = "skip_mlp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_UnknownSchemeIsSentinel(t *testing.T) {
	cfg := config.Default()
	cfg.Scheme = "adams"
	assert.ErrorIs(t, cfg.Validate(), integrate.ErrUnknownScheme)
}
