package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIRecognizer is the buffered speech-to-text engine backed by the
// OpenAI transcription API (or any compatible endpoint via APIBase).
type OpenAIRecognizer struct {
	client     openai.Client
	model      string
	sampleRate int
}

type OpenAIOptions struct {
	APIKey  string
	APIBase string
	Model   string
	Voice   string
}

func NewOpenAIRecognizer(opts OpenAIOptions, sampleRate int) *OpenAIRecognizer {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.APIBase != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.APIBase))
	}
	return &OpenAIRecognizer{
		client:     openai.NewClient(reqOpts...),
		model:      opts.Model,
		sampleRate: sampleRate,
	}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, audio []byte) (string, error) {
	wav := wavFromPCM(audio, r.sampleRate)
	resp, err := r.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: openai.AudioModel(r.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return resp.Text, nil
}

// OpenAISynthesizer is the text-to-speech engine backed by the OpenAI
// speech API.
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(opts OpenAIOptions) *OpenAISynthesizer {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.APIBase != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.APIBase))
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(reqOpts...),
		model:  opts.Model,
		voice:  opts.Voice,
	}
}

func (s *OpenAISynthesizer) Engine() string { return "openai" }
func (s *OpenAISynthesizer) Voice() string  { return s.voice }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, utterance string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          utterance,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}
	return audio, nil
}
