package speech

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// Synthesizer is the text-to-speech contract: one utterance in, one
// playable audio blob out.
type Synthesizer interface {
	Synthesize(ctx context.Context, utterance string) ([]byte, error)
	// Engine and Voice name the configuration for cache keying.
	Engine() string
	Voice() string
}

// Cache stores synthesized audio on disk keyed by a content hash of
// (engine, voice, utterance). Identical keys always hold identical bytes,
// so concurrent writers are harmless; last writer wins without corruption.
type Cache struct {
	dir string
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tts cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(engine, voice, utterance string) string {
	sum := sha512.Sum512([]byte(utterance))
	name := fmt.Sprintf("%s_%s_%s.wav", engine, voice, hex.EncodeToString(sum[:]))
	return filepath.Join(c.dir, name)
}

// Get returns the cached audio for the utterance, if present.
func (c *Cache) Get(engine, voice, utterance string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(engine, voice, utterance))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores audio for the utterance. Failures only cost a cache miss
// later, so they are logged and swallowed.
func (c *Cache) Put(engine, voice, utterance string, audio []byte) {
	if err := os.WriteFile(c.path(engine, voice, utterance), audio, 0o644); err != nil {
		logger.WarnCF("speech", "TTS cache write failed", map[string]any{"error": err.Error()})
	}
}
