package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

// openAI talks to an OpenAI-style /audio/transcriptions endpoint with a
// multipart WAV upload.
type openAI struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	language string
	prompt   string
}

func newOpenAI(cfg *config.Config) *openAI {
	return &openAI{
		client:   &http.Client{Timeout: time.Duration(cfg.Dispatch.RequestTimeoutSec) * time.Second},
		baseURL:  strings.TrimRight(cfg.Backend.OpenAI.BaseURL, "/"),
		apiKey:   cfg.Backend.OpenAI.APIKey,
		model:    cfg.Backend.OpenAI.Model,
		language: cfg.Backend.Language,
		prompt:   languagePrompt(cfg.Backend.Language),
	}
}

func (o *openAI) Name() string { return config.BackendOpenAI }

func (o *openAI) Transcribe(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
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
	_ = mw.WriteField("model", o.model)
	_ = mw.WriteField("temperature", "0")
	if o.language != "" {
		_ = mw.WriteField("language", o.language)
	}
	if o.prompt != "" {
		_ = mw.WriteField("prompt", o.prompt)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTP("openai", resp)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// classifyHTTP maps an error response onto the error taxonomy.
func classifyHTTP(name string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(snippet))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", name, ErrAuth, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %s", name, ErrRateLimited, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w: http %d: %s", name, ErrNetwork, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%s: %w: http %d: %s", name, ErrInvalidAudio, resp.StatusCode, detail)
	}
}

// languagePrompt nudges the model toward the configured language, the
// trick the API needs to stop guessing on short segments.
func languagePrompt(lang string) string {
	if lang == "" {
		return ""
	}
	names := map[string]string{
		"de": "Deutsch",
		"en": "English",
		"fr": "French",
		"es": "Spanish",
	}
	name, ok := names[strings.ToLower(lang)]
	if !ok {
		name = lang
	}
	return fmt.Sprintf("The following transcription is in %s.", name)
}
