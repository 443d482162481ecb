package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "/boot/os.go", cfg.Boot.OSEntry)
	assert.Equal(t, "/boot/app.go", cfg.Boot.AppEntry)
	assert.Equal(t, 50*time.Millisecond, cfg.Boot.RecompileDelayDuration())
	assert.Equal(t, 2*time.Minute, cfg.Service.TimeoutDuration())
	assert.Equal(t, 5*time.Second, cfg.Preview.TimeoutDuration())
	assert.Equal(t, ".ouro/tree.db", cfg.Store.DatabasePath)
	assert.False(t, cfg.Mirror.Enabled)
}

func TestDurations_FallBackOnGarbage(t *testing.T) {
	svc := ServiceConfig{Timeout: "not a duration"}
	assert.Equal(t, 2*time.Minute, svc.TimeoutDuration())

	b := BootConfig{RecompileDelay: ""}
	assert.Equal(t, 50*time.Millisecond, b.RecompileDelayDuration())

	p := PreviewConfig{Timeout: "???"}
	assert.Equal(t, 5*time.Second, p.TimeoutDuration())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Boot, cfg.Boot)
	assert.Empty(t, cfg.Service.APIKey)
}

func TestLoad_ReadsYaml(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OURO_MODEL", "")

	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".ouro"), 0o755))
	yamlBody := `
service:
  model: custom-model
  timeout: 30s
boot:
  recompile_delay: 200ms
mirror:
  enabled: true
  directory: mirror-out
`
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".ouro", "config.yaml"), []byte(yamlBody), 0o644))

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Service.Model)
	assert.Equal(t, 30*time.Second, cfg.Service.TimeoutDuration())
	assert.Equal(t, 200*time.Millisecond, cfg.Boot.RecompileDelayDuration())
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, "mirror-out", cfg.Mirror.Directory)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, "/boot/os.go", cfg.Boot.OSEntry)
}

func TestLoad_MalformedYaml(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".ouro"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".ouro", "config.yaml"), []byte("boot: [not: a map"), 0o644))

	_, err := Load(ws)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY wins", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("GOOGLE_API_KEY", "goog-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gem-key", cfg.Service.APIKey)
	})

	t.Run("GOOGLE_API_KEY as fallback", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "goog-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "goog-key", cfg.Service.APIKey)
	})

	t.Run("OURO_MODEL overrides model", func(t *testing.T) {
		t.Setenv("OURO_MODEL", "experimental")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "experimental", cfg.Service.Model)
	})
}

func TestSaveRoundtrip(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OURO_MODEL", "")

	ws := t.TempDir()
	cfg := DefaultConfig()
	cfg.Service.Model = "saved-model"
	require.NoError(t, cfg.Save(ws))

	loaded, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.Service.Model)
}
