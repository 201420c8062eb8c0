package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"murmur/internal/config"
	"murmur/internal/logging"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]float32, 1600)
	for i := range pcm {
		pcm[i] = 0.25
	}
	data, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatalf("not a RIFF/WAVE file: %q", data[:12])
	}
	// 16-bit mono: two bytes per sample plus the 44-byte canonical header.
	if want := 44 + len(pcm)*2; len(data) != want {
		t.Fatalf("wav length = %d, want %d", len(data), want)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Fatalf("sample rate in header = %d", rate)
	}
}

func TestEncodeWAVClampsOverdrive(t *testing.T) {
	data, err := EncodeWAV([]float32{2.0, -2.0}, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	samples := data[len(data)-4:]
	if v := int16(binary.LittleEndian.Uint16(samples[0:2])); v != 32767 {
		t.Fatalf("positive clip = %d, want 32767", v)
	}
	if v := int16(binary.LittleEndian.Uint16(samples[2:4])); v != -32767 {
		t.Fatalf("negative clip = %d, want -32767", v)
	}
}

func TestTransient(t *testing.T) {
	if !Transient(fmt.Errorf("wrapped: %w", ErrRateLimited)) {
		t.Fatal("rate limit should be transient")
	}
	if !Transient(ErrNetwork) {
		t.Fatal("network failure should be transient")
	}
	if Transient(ErrAuth) || Transient(ErrInvalidAudio) {
		t.Fatal("auth and invalid-audio must not be retried")
	}
	if Transient(nil) {
		t.Fatal("nil is not transient")
	}
}

func apiConfig(t *testing.T, mode, url string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Backend.Mode = mode
	cfg.Backend.OpenAI.APIKey = "sk-test"
	cfg.Backend.OpenAI.BaseURL = url
	cfg.Backend.ElevenLabs.APIKey = "el-test"
	cfg.Backend.ElevenLabs.BaseURL = url
	return cfg
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q", got)
		}
		fmt.Fprint(w, `{"text":"  hello world "}`)
	}))
	defer srv.Close()

	b := newOpenAI(apiConfig(t, config.BackendOpenAI, srv.URL))
	text, err := b.Transcribe(context.Background(), make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}
}

func TestHTTPErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrAuth},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrNetwork},
		{http.StatusBadRequest, ErrInvalidAudio},
	}
	for _, tc := range cases {
		status := tc.status
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))
		b := newOpenAI(apiConfig(t, config.BackendOpenAI, srv.URL))
		_, err := b.Transcribe(context.Background(), make([]float32, 1600), 16000)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d classified as %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestOpenAIConnectionRefusedIsNetwork(t *testing.T) {
	b := newOpenAI(apiConfig(t, config.BackendOpenAI, "http://127.0.0.1:1"))
	_, err := b.Transcribe(context.Background(), make([]float32, 1600), 16000)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("connection refused classified as %v", err)
	}
}

func TestElevenLabsTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-text" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "el-test" {
			t.Errorf("api key header = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id field = %q", got)
		}
		fmt.Fprint(w, `{"text":"guten Tag"}`)
	}))
	defer srv.Close()

	b := newElevenLabs(apiConfig(t, config.BackendElevenLabs, srv.URL))
	text, err := b.Transcribe(context.Background(), make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "guten Tag" {
		t.Fatalf("text = %q", text)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	logger := logging.NewTestLogger()

	cfg.Backend.Mode = config.BackendOpenAI
	cfg.Backend.OpenAI.APIKey = ""
	if _, err := New(cfg, logger); err == nil {
		t.Fatal("openai without key should fail")
	}

	cfg.Backend.Mode = config.BackendElevenLabs
	cfg.Backend.ElevenLabs.APIKey = ""
	if _, err := New(cfg, logger); err == nil {
		t.Fatal("elevenlabs without key should fail")
	}

	cfg.Backend.Mode = "carrier-pigeon"
	if _, err := New(cfg, logger); err == nil {
		t.Fatal("unknown mode should fail")
	}
}

func TestLanguagePrompt(t *testing.T) {
	if got := languagePrompt("de"); got != "The following transcription is in Deutsch." {
		t.Fatalf("prompt = %q", got)
	}
	if got := languagePrompt(""); got != "" {
		t.Fatalf("empty language produced %q", got)
	}
}
