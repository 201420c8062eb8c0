package segment

import (
	"time"

	"murmur/internal/audio"

	"github.com/sirupsen/logrus"
)

// Model scores one fixed-size audio frame with a speech probability in
// [0,1]. The production model is the WebRTC VAD (binary, so it reports
// 1.0 or 0.0); tests use scoring fakes.
type Model interface {
	Prob(samples []float32) (float64, error)
}

// VAD segments with a speech/silence state machine driven by a Model.
// Frames observed while in the silence state are never buffered, so
// emitted segments carry no leading silence and memory stays bounded.
type VAD struct {
	model      Model
	logger     *logrus.Logger
	sampleRate int
	threshold  float64
	minSilence time.Duration
	minSpeech  time.Duration

	inSpeech   bool
	buf        []float32
	bufStart   time.Time
	silenceRun time.Duration
}

// VADParams configures the VAD strategy.
type VADParams struct {
	SampleRate      int
	Threshold       float64
	MinSilenceMS    int
	MinSpeechMS     int
}

// NewVAD returns the VAD segmenter around an already-constructed model.
func NewVAD(model Model, p VADParams, logger *logrus.Logger) *VAD {
	return &VAD{
		model:      model,
		logger:     logger,
		sampleRate: p.SampleRate,
		threshold:  p.Threshold,
		minSilence: time.Duration(p.MinSilenceMS) * time.Millisecond,
		minSpeech:  time.Duration(p.MinSpeechMS) * time.Millisecond,
	}
}

// Feed runs f through the model and advances the state machine. A segment
// is emitted on the speech-to-silence transition once consecutive
// sub-threshold frames cover the minimum silence duration.
func (v *VAD) Feed(f audio.Frame) *Utterance {
	if len(f.Samples) == 0 {
		return nil
	}
	prob, err := v.model.Prob(f.Samples)
	if err != nil {
		// A scoring failure on one frame is not fatal to the session;
		// skip the frame rather than guessing speech or silence.
		v.logger.Warnf("vad: scoring frame: %v", err)
		return nil
	}
	speech := prob >= v.threshold

	if !v.inSpeech {
		if !speech {
			return nil // silence frames are discarded, never buffered
		}
		v.inSpeech = true
		v.bufStart = f.Time
		v.buf = append(v.buf[:0], f.Samples...)
		v.silenceRun = 0
		return nil
	}

	v.buf = append(v.buf, f.Samples...)
	if speech {
		v.silenceRun = 0
		return nil
	}
	v.silenceRun += f.Duration(v.sampleRate)
	if v.silenceRun < v.minSilence {
		return nil
	}
	return v.endSpeech()
}

// Flush discards any in-progress speech buffer. Stopping mid-utterance
// would transcribe a cut-off word; the stop policy drops it instead.
func (v *VAD) Flush() *Utterance {
	if v.inSpeech {
		v.logger.Debugf("vad: discarding in-progress buffer on stop (%d samples)", len(v.buf))
	}
	v.Reset()
	return nil
}

// Reset drops the state machine back to silence with an empty buffer.
func (v *VAD) Reset() {
	v.inSpeech = false
	v.buf = nil
	v.silenceRun = 0
}

func (v *VAD) endSpeech() *Utterance {
	total := time.Duration(len(v.buf)) * time.Second / time.Duration(v.sampleRate)
	speechDur := total - v.silenceRun
	u := &Utterance{Start: v.bufStart, Samples: v.buf}
	v.Reset()
	if v.minSpeech > 0 && speechDur < v.minSpeech {
		v.logger.Debugf("vad: segment too short (%v speech), dropping", speechDur)
		return nil
	}
	return u
}
