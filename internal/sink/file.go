package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"murmur/internal/config"
)

// File appends transcriptions to a log file, one entry per line, in
// plain text or JSON.
type File struct {
	path   string
	format string

	mu sync.Mutex
	f  *os.File
}

type fileEntry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

func NewFile(cfg *config.Config) (*File, error) {
	f, err := os.OpenFile(cfg.Output.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &File{path: cfg.Output.Path, format: cfg.Output.Format, f: f}, nil
}

func (w *File) Emit(ctx context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var line []byte
	switch w.format {
	case "json":
		data, err := json.Marshal(fileEntry{Time: time.Now().UTC(), Text: text})
		if err != nil {
			return err
		}
		line = append(data, '\n')
	default:
		line = []byte(time.Now().Format("2006-01-02 15:04:05") + " - " + text + "\n")
	}
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("append output file: %w", err)
	}
	return nil
}

func (w *File) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
