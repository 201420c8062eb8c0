package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

// elevenLabs talks to an ElevenLabs-style /speech-to-text endpoint.
type elevenLabs struct {
	client  *http.Client
	baseURL string
	apiKey  string
	modelID string
}

func newElevenLabs(cfg *config.Config) *elevenLabs {
	return &elevenLabs{
		client:  &http.Client{Timeout: time.Duration(cfg.Dispatch.RequestTimeoutSec) * time.Second},
		baseURL: strings.TrimRight(cfg.Backend.ElevenLabs.BaseURL, "/"),
		apiKey:  cfg.Backend.ElevenLabs.APIKey,
		modelID: cfg.Backend.ElevenLabs.ModelID,
	}
}

func (e *elevenLabs) Name() string { return config.BackendElevenLabs }

func (e *elevenLabs) Transcribe(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	wavBytes, err := EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(wavBytes); err != nil {
		return "", err
	}
	_ = mw.WriteField("model_id", e.modelID)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/speech-to-text", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTP("elevenlabs", resp)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("elevenlabs: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
