package config

// DefaultConfig returns the configuration the hub starts with when no
// config file exists. Port 6799 is the historical HiveMind default.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Host: "0.0.0.0",
			Port: 6799,
		},
		Bus: BusConfig{
			Capacity: 100,
		},
		Policy: PolicyConfig{
			Mode: PolicyModeDeny,
			IPs:  []string{},
		},
		Speech: SpeechConfig{
			SampleRate: 16000,
			STTMode:    STTModeStreaming,
			STT: STTConfig{
				Engine: "openai",
				Model:  "whisper-1",
			},
			TTS: TTSConfig{
				Engine:   "openai",
				Voice:    "alloy",
				Model:    "tts-1",
				CacheDir: "~/.hivemind/tts_cache",
			},
		},
		Announce: true,
		DBPath:   "~/.hivemind/clients.json",
	}
}
