package stt

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV renders mono float32 PCM as a 16-bit WAV file in memory, the
// upload format for the HTTP backends.
func EncodeWAV(pcm []float32, sampleRate int) ([]byte, error) {
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 16,
	}
	for i, s := range pcm {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back
// to patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (ws *writeSeeker) Write(p []byte) (int, error) {
	if need := ws.pos + len(p); need > len(ws.buf) {
		grown := make([]byte, need)
		copy(grown, ws.buf)
		ws.buf = grown
	}
	copy(ws.buf[ws.pos:], p)
	ws.pos += len(p)
	return len(p), nil
}

func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = ws.pos + int(offset)
	case io.SeekEnd:
		next = len(ws.buf) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek before start")
	}
	ws.pos = next
	return int64(next), nil
}
