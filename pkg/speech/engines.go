package speech

import (
	"fmt"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/config"
)

// NewRecognizer builds the configured speech-to-text engine.
func NewRecognizer(cfg config.SpeechConfig) (Recognizer, error) {
	switch cfg.STT.Engine {
	case "openai":
		return NewOpenAIRecognizer(OpenAIOptions{
			APIKey:  cfg.STT.APIKey,
			APIBase: cfg.STT.APIBase,
			Model:   cfg.STT.Model,
		}, cfg.SampleRate), nil
	case "subprocess":
		return NewSubprocessRecognizer(cfg.STT.Command, cfg.STT.Args, cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.STT.Engine)
	}
}

// NewSynthesizer builds the configured text-to-speech engine.
func NewSynthesizer(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Engine {
	case "openai":
		return NewOpenAISynthesizer(OpenAIOptions{
			APIKey:  cfg.APIKey,
			APIBase: cfg.APIBase,
			Model:   cfg.Model,
			Voice:   cfg.Voice,
		}), nil
	default:
		return nil, fmt.Errorf("unknown tts engine %q", cfg.Engine)
	}
}
