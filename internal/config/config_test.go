package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 300, cfg.DPI)
	assert.Equal(t, 10, cfg.Pages)
	assert.Equal(t, 3, cfg.Words)
	assert.Equal(t, 5.0, cfg.TextPercent)
	assert.Equal(t, 100.0, cfg.ImagePercent)
	assert.Equal(t, 0, cfg.MaxUnsearchable)
	assert.False(t, cfg.Force)
	assert.NoError(t, cfg.Validate())
}

func TestApplyFile(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.ApplyFile(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dpi: 600\ntext: 2.5\nocr_cmd: finecmd {{input}} /out {{output}}\n"), 0600))

		cfg := Default()
		require.NoError(t, cfg.ApplyFile(path))
		assert.Equal(t, 600, cfg.DPI)
		assert.Equal(t, 2.5, cfg.TextPercent)
		assert.Equal(t, "finecmd {{input}} /out {{output}}", cfg.OCRCommand)
		// Untouched fields keep defaults.
		assert.Equal(t, 10, cfg.Pages)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dpi: [not an int\n"), 0600))

		cfg := Default()
		assert.Error(t, cfg.ApplyFile(path))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dpi", func(c *Config) { c.DPI = 0 }},
		{"zero pages", func(c *Config) { c.Pages = 0 }},
		{"negative words", func(c *Config) { c.Words = -1 }},
		{"text percent above 100", func(c *Config) { c.TextPercent = 101 }},
		{"negative image percent", func(c *Config) { c.ImagePercent = -1 }},
		{"negative unsearchable", func(c *Config) { c.MaxUnsearchable = -1 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
