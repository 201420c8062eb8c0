package segment

import (
	"testing"
	"time"

	"murmur/internal/audio"
)

const testRate = 16000

// 20ms frames at 16kHz.
func speechFrame() audio.Frame {
	s := make([]float32, 320)
	for i := range s {
		s[i] = 0.5 // -6 dBFS
	}
	return audio.Frame{Samples: s, Time: time.Now()}
}

func silenceFrame() audio.Frame {
	return audio.Frame{Samples: make([]float32, 320), Time: time.Now()}
}

func testSilenceParams() SilenceParams {
	return SilenceParams{
		SampleRate:         testRate,
		SilenceThresholdDB: -40,
		MinBufferMS:        200,
		SilenceDurationMS:  100,
		MaxBufferMS:        10000,
	}
}

func TestSilenceEmitsNothingForPureSilence(t *testing.T) {
	s := NewSilence(testSilenceParams())
	for i := 0; i < 50; i++ {
		if u := s.Feed(silenceFrame()); u != nil {
			t.Fatalf("frame %d: emitted segment from pure silence", i)
		}
	}
	if u := s.Flush(); u != nil {
		t.Fatalf("flush emitted segment from pure silence")
	}
}

func TestSilenceEmitsSpeechThenSilence(t *testing.T) {
	s := NewSilence(testSilenceParams())
	var got *Utterance
	for i := 0; i < 10; i++ {
		if u := s.Feed(speechFrame()); u != nil {
			t.Fatalf("speech frame %d: premature emission", i)
		}
	}
	// 5 silence frames cover the 100ms silence duration.
	for i := 0; i < 5; i++ {
		if u := s.Feed(silenceFrame()); u != nil {
			if got != nil {
				t.Fatalf("second emission")
			}
			got = u
		}
	}
	if got == nil {
		t.Fatalf("no segment emitted")
	}
	// Trailing silence frames that satisfied the end condition are included.
	if want := 15 * 320; len(got.Samples) != want {
		t.Fatalf("segment has %d samples, want %d (10 speech + 5 trailing silence frames)", len(got.Samples), want)
	}
	if got.Samples[0] != 0.5 {
		t.Fatalf("segment does not start with the first speech frame")
	}
}

func TestSilenceRespectsMinBuffer(t *testing.T) {
	p := testSilenceParams()
	p.MinBufferMS = 1000
	s := NewSilence(p)
	// 5 speech + 5 silence = 200ms, below the 1s minimum: no emission even
	// though the silence run is satisfied.
	for i := 0; i < 5; i++ {
		s.Feed(speechFrame())
	}
	for i := 0; i < 5; i++ {
		if u := s.Feed(silenceFrame()); u != nil {
			t.Fatalf("emitted a segment below min_buffer_ms")
		}
	}
}

func TestSilenceHardCapOnContinuousSpeech(t *testing.T) {
	p := testSilenceParams()
	p.MaxBufferMS = 400
	s := NewSilence(p)
	var emitted []*Utterance
	for i := 0; i < 40; i++ {
		if u := s.Feed(speechFrame()); u != nil {
			emitted = append(emitted, u)
		}
	}
	// 40 frames = 800ms of continuous speech with a 400ms cap: two segments.
	if len(emitted) != 2 {
		t.Fatalf("expected 2 capped segments, got %d", len(emitted))
	}
	for _, u := range emitted {
		if want := 20 * 320; len(u.Samples) != want {
			t.Fatalf("capped segment has %d samples, want %d", len(u.Samples), want)
		}
	}
}

func TestSilenceFlushPolicy(t *testing.T) {
	s := NewSilence(testSilenceParams())
	for i := 0; i < 15; i++ {
		s.Feed(speechFrame()) // 300ms, above the 200ms minimum
	}
	u := s.Flush()
	if u == nil {
		t.Fatalf("flush should emit a remainder above min_buffer_ms")
	}
	if len(u.Samples) != 15*320 {
		t.Fatalf("remainder has %d samples, want %d", len(u.Samples), 15*320)
	}

	s = NewSilence(testSilenceParams())
	for i := 0; i < 5; i++ {
		s.Feed(speechFrame()) // 100ms, below minimum
	}
	if u := s.Flush(); u != nil {
		t.Fatalf("flush emitted a remainder below min_buffer_ms")
	}
}

func TestLevelDB(t *testing.T) {
	if db := LevelDB(make([]float32, 320)); db != levelFloorDB {
		t.Fatalf("silent frame level = %v, want floor", db)
	}
	full := make([]float32, 320)
	for i := range full {
		full[i] = 1
	}
	if db := LevelDB(full); db > 0.01 || db < -0.01 {
		t.Fatalf("full-scale frame level = %v, want ~0 dBFS", db)
	}
}
