package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Listen   ListenConfig `json:"listen"`
	Bus      BusConfig    `json:"bus"`
	Policy   PolicyConfig `json:"policy"`
	Speech   SpeechConfig `json:"speech"`
	Announce bool         `env:"HIVEMIND_ANNOUNCE" json:"announce"`
	DBPath   string       `env:"HIVEMIND_DB_PATH"  json:"db_path"`
}

type ListenConfig struct {
	Host string `env:"HIVEMIND_LISTEN_HOST" json:"host"`
	Port int    `env:"HIVEMIND_LISTEN_PORT" json:"port"`
}

type BusConfig struct {
	Capacity int `env:"HIVEMIND_BUS_CAPACITY" json:"capacity"`
}

// PolicyConfig is the connection IP policy. Mode "deny" treats IPs as a
// deny list, "allow" as an allow list.
type PolicyConfig struct {
	Mode string   `env:"HIVEMIND_POLICY_MODE" json:"mode"`
	IPs  []string `env:"HIVEMIND_POLICY_IPS"  json:"ips"`
}

type SpeechConfig struct {
	SampleRate int       `env:"HIVEMIND_SPEECH_SAMPLE_RATE" json:"sample_rate"`
	STTMode    string    `env:"HIVEMIND_SPEECH_STT_MODE"    json:"stt_mode"` // "buffered" | "streaming"
	STT        STTConfig `json:"stt"`
	TTS        TTSConfig `json:"tts"`
}

type STTConfig struct {
	Engine  string   `env:"HIVEMIND_STT_ENGINE"   json:"engine"` // "openai" | "subprocess"
	Model   string   `env:"HIVEMIND_STT_MODEL"    json:"model"`
	APIKey  string   `env:"HIVEMIND_STT_API_KEY"  json:"api_key"`
	APIBase string   `env:"HIVEMIND_STT_API_BASE" json:"api_base"`
	Command string   `env:"HIVEMIND_STT_COMMAND"  json:"command,omitempty"` // subprocess engine
	Args    []string `json:"args,omitempty"`
}

type TTSConfig struct {
	Engine   string `env:"HIVEMIND_TTS_ENGINE"    json:"engine"`
	Voice    string `env:"HIVEMIND_TTS_VOICE"     json:"voice"`
	Model    string `env:"HIVEMIND_TTS_MODEL"     json:"model"`
	APIKey   string `env:"HIVEMIND_TTS_API_KEY"   json:"api_key"`
	APIBase  string `env:"HIVEMIND_TTS_API_BASE"  json:"api_base"`
	CacheDir string `env:"HIVEMIND_TTS_CACHE_DIR" json:"cache_dir"`
}

const (
	STTModeBuffered  = "buffered"
	STTModeStreaming = "streaming"

	PolicyModeDeny  = "deny"
	PolicyModeAllow = "allow"
)

// Validate rejects configurations the hub cannot start with.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Listen.Port)
	}
	switch c.Speech.STTMode {
	case STTModeBuffered, STTModeStreaming:
	default:
		return fmt.Errorf("unknown stt_mode %q", c.Speech.STTMode)
	}
	switch c.Policy.Mode {
	case PolicyModeDeny, PolicyModeAllow:
	default:
		return fmt.Errorf("unknown policy mode %q", c.Policy.Mode)
	}
	if c.Speech.SampleRate <= 0 {
		return errors.New("sample_rate must be positive")
	}
	return nil
}

// LoadConfig reads the JSON config at path, overlays HIVEMIND_* env vars
// and validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// DatabasePath returns the credential store path with ~ expanded.
func (c *Config) DatabasePath() string {
	return ExpandHome(c.DBPath)
}

// TTSCachePath returns the TTS cache directory with ~ expanded.
func (c *Config) TTSCachePath() string {
	return ExpandHome(c.Speech.TTS.CacheDir)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
