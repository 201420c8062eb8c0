package segment

import (
	"math"
	"time"

	"murmur/internal/audio"
)

// levelFloorDB is reported for digitally silent frames so threshold
// comparisons stay finite.
const levelFloorDB = -96.0

// Silence is the legacy energy/silence segmenter. Every frame is buffered;
// a segment is emitted once trailing silence has lasted long enough and
// the buffer meets the minimum duration, or when the buffer hits the hard
// cap. Emitted segments therefore include the trailing silence frames that
// satisfied the end condition.
type Silence struct {
	sampleRate  int
	thresholdDB float64
	minBuffer   time.Duration
	silenceDur  time.Duration
	maxBuffer   time.Duration

	buf        []float32
	bufStart   time.Time
	silenceRun time.Duration
	heard      bool
}

// SilenceParams configures the legacy strategy.
type SilenceParams struct {
	SampleRate         int
	SilenceThresholdDB float64
	MinBufferMS        int
	SilenceDurationMS  int
	MaxBufferMS        int
}

// NewSilence returns the legacy segmenter.
func NewSilence(p SilenceParams) *Silence {
	return &Silence{
		sampleRate:  p.SampleRate,
		thresholdDB: p.SilenceThresholdDB,
		minBuffer:   time.Duration(p.MinBufferMS) * time.Millisecond,
		silenceDur:  time.Duration(p.SilenceDurationMS) * time.Millisecond,
		maxBuffer:   time.Duration(p.MaxBufferMS) * time.Millisecond,
	}
}

// Feed buffers f and checks the emission conditions. The silence-run
// condition is evaluated before the hard cap.
func (s *Silence) Feed(f audio.Frame) *Utterance {
	if len(f.Samples) == 0 {
		return nil
	}
	if len(s.buf) == 0 {
		s.bufStart = f.Time
	}
	s.buf = append(s.buf, f.Samples...)

	if LevelDB(f.Samples) >= s.thresholdDB {
		s.heard = true
		s.silenceRun = 0
	} else if s.heard {
		s.silenceRun += f.Duration(s.sampleRate)
	}

	dur := time.Duration(len(s.buf)) * time.Second / time.Duration(s.sampleRate)
	if s.heard && s.silenceRun >= s.silenceDur && dur >= s.minBuffer {
		return s.emit()
	}
	if s.maxBuffer > 0 && dur >= s.maxBuffer {
		if s.heard {
			return s.emit()
		}
		// Pure silence hit the cap; discard so memory stays bounded
		// without emitting a segment that contains no speech.
		s.Reset()
	}
	return nil
}

// Flush emits the in-progress buffer when it holds speech and meets the
// minimum duration; shorter remainders are dropped.
func (s *Silence) Flush() *Utterance {
	dur := time.Duration(len(s.buf)) * time.Second / time.Duration(s.sampleRate)
	if s.heard && dur >= s.minBuffer {
		return s.emit()
	}
	s.Reset()
	return nil
}

// Reset drops the buffer and all counters.
func (s *Silence) Reset() {
	s.buf = nil
	s.silenceRun = 0
	s.heard = false
}

func (s *Silence) emit() *Utterance {
	u := &Utterance{Start: s.bufStart, Samples: s.buf}
	s.buf = nil
	s.silenceRun = 0
	s.heard = false
	return u
}

// LevelDB computes the RMS level of a frame in dBFS.
func LevelDB(samples []float32) float64 {
	if len(samples) == 0 {
		return levelFloorDB
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return levelFloorDB
	}
	db := 20 * math.Log10(rms)
	if db < levelFloorDB {
		return levelFloorDB
	}
	return db
}
