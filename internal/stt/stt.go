// Package stt provides the transcription backend contract and its three
// implementations: a local whisper.cpp model, an OpenAI-style API, and an
// ElevenLabs-style API. The pipeline treats them uniformly.
package stt

import (
	"context"
	"errors"
	"fmt"

	"murmur/internal/config"

	"github.com/sirupsen/logrus"
)

// Error kinds. Transient kinds may succeed on retry; the rest will not.
var (
	ErrAuth         = errors.New("authentication failed")
	ErrRateLimited  = errors.New("rate limited")
	ErrNetwork      = errors.New("network failure")
	ErrInvalidAudio = errors.New("invalid audio")
)

// Transient reports whether a retry of the same request may succeed.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}

// Backend converts one audio segment into text.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, pcm []float32, sampleRate int) (string, error)
}

// New builds the backend named by cfg. Missing credentials or an
// unloadable model fail here, before a session starts.
func New(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	switch cfg.Backend.Mode {
	case config.BackendLocal:
		return newLocalBackend(cfg, logger)
	case config.BackendOpenAI:
		if cfg.Backend.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai backend selected but backend.openai.api_key is empty")
		}
		return newOpenAI(cfg), nil
	case config.BackendElevenLabs:
		if cfg.Backend.ElevenLabs.APIKey == "" {
			return nil, fmt.Errorf("elevenlabs backend selected but backend.elevenlabs.api_key is empty")
		}
		return newElevenLabs(cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}
}
