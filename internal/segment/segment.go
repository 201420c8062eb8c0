// Package segment turns a continuous stream of captured audio frames into
// discrete utterances ready for transcription. Two mutually exclusive
// strategies exist: the legacy energy/silence segmenter and the VAD-model
// segmenter. The Controller owns exactly one live strategy at a time.
package segment

import (
	"fmt"
	"time"

	"murmur/internal/audio"
)

// Segment is one candidate utterance: the buffered samples, the capture
// time of the first buffered frame, and a monotonically increasing
// sequence number assigned by the Controller at emission.
type Segment struct {
	Seq     uint64
	Start   time.Time
	Samples []float32
}

// Duration returns the segment length at the given sample rate.
func (s Segment) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(sampleRate)
}

// Utterance is an emitted buffer before the Controller stamps a sequence
// number on it.
type Utterance struct {
	Start   time.Time
	Samples []float32
}

// Segmenter is the strategy contract. Feed consumes one frame and returns
// a completed utterance when the strategy's end-of-speech condition fires.
// Flush applies the strategy's stop-time policy to any in-progress buffer:
// the legacy strategy emits it when long enough, the VAD strategy discards
// it. Reset drops all in-progress state.
type Segmenter interface {
	Feed(f audio.Frame) *Utterance
	Flush() *Utterance
	Reset()
}

// ConfigError reports segmentation configuration that cannot be honored,
// e.g. an unloadable VAD model. Mode selection is explicit: a bad config
// fails session start, it never falls back to the other strategy.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("segmentation config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
