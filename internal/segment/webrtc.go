package segment

import (
	"encoding/binary"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTCModel adapts the WebRTC voice activity detector to the Model
// interface. The detector is binary, so Prob reports 1.0 for speech
// frames and 0.0 otherwise; any threshold in (0,1] behaves as a
// speech/non-speech switch.
type WebRTCModel struct {
	vad        *webrtcvad.VAD
	sampleRate int
}

// NewWebRTCModel builds the detector. Construction fails fast on an
// unsupported rate or aggressiveness so a bad VAD config is rejected at
// session start, per the no-silent-fallback rule.
func NewWebRTCModel(sampleRate, aggressiveness int) (*WebRTCModel, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("sample_rate must be 8k/16k/32k/48k for webrtc vad (got %d)", sampleRate)
	}
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad_aggressiveness must be 0..3 (got %d)", aggressiveness)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	return &WebRTCModel{vad: v, sampleRate: sampleRate}, nil
}

// Prob classifies one frame. The frame length must be 10, 20, or 30 ms
// at the configured sample rate.
func (m *WebRTCModel) Prob(samples []float32) (float64, error) {
	if !webrtcvad.ValidRateAndFrameLength(m.sampleRate, len(samples)) {
		return 0, fmt.Errorf("invalid frame length %d for sample_rate %d", len(samples), m.sampleRate)
	}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}
	active, err := m.vad.Process(m.sampleRate, buf)
	if err != nil {
		return 0, fmt.Errorf("vad process: %w", err)
	}
	if active {
		return 1, nil
	}
	return 0, nil
}
