package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 6799, cfg.Listen.Port)
	assert.Equal(t, STTModeStreaming, cfg.Speech.STTMode)
	assert.Equal(t, PolicyModeDeny, cfg.Policy.Mode)
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"listen": {"host": "127.0.0.1", "port": 7000},
	          "speech": {"sample_rate": 8000, "stt_mode": "buffered"}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Listen.Host)
	assert.Equal(t, 7000, cfg.Listen.Port)
	assert.Equal(t, 8000, cfg.Speech.SampleRate)
	assert.Equal(t, STTModeBuffered, cfg.Speech.STTMode)
	// untouched sections keep defaults
	assert.Equal(t, 100, cfg.Bus.Capacity)
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	t.Setenv("HIVEMIND_LISTEN_PORT", "9100")
	t.Setenv("HIVEMIND_POLICY_MODE", "allow")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Listen.Port)
	assert.Equal(t, PolicyModeAllow, cfg.Policy.Mode)
}

func TestValidateRejectsBadModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Speech.STTMode = "telepathy"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Policy.Mode = "maybe"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Listen.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Listen.Port = 7100
	require.NoError(t, SaveConfig(path, cfg))

	back, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, back.Listen.Port)
}
