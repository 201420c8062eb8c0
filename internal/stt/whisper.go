//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"murmur/internal/config"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"
)

// local runs segments through a whisper.cpp model loaded in-process. The
// model is loaded once at construction; each call gets a fresh context.
type local struct {
	model    whisper.Model
	language string
	logger   *logrus.Logger
}

func newLocalBackend(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	if cfg.Backend.Local.ModelPath == "" {
		return nil, fmt.Errorf("local backend selected but backend.local.model_path is empty")
	}
	model, err := whisper.New(cfg.Backend.Local.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.Backend.Local.ModelPath, err)
	}
	return &local{
		model:    model,
		language: strings.TrimSpace(cfg.Backend.Language),
		logger:   logger,
	}, nil
}

func (l *local) Name() string { return config.BackendLocal }

func (l *local) Transcribe(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("%w: empty segment", ErrInvalidAudio)
	}

	params := whisper.NewParams(whisper.SAMPLING_GREEDY)
	params.SetNThreads(runtime.NumCPU())
	params.SetAudioCtx(0)

	wctx, err := l.model.NewContext(params)
	if err != nil {
		return "", err
	}
	if l.language != "" {
		if err := wctx.SetLanguage(l.language); err != nil {
			l.logger.Warnf("set language: %v", err)
		}
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", err
	}

	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (l *local) Close() error {
	return l.model.Close()
}
