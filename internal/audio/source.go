package audio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// DeviceError reports a microphone that could not be opened. It is fatal to
// the current session only; the caller may retry with another device.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("audio device unavailable: %v", e.Err)
	}
	return fmt.Sprintf("audio device %q unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Source captures microphone input through portaudio and feeds fixed-size
// frames into a Queue from the stream callback.
type Source struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	queue   *Queue
	rate    int
	running bool
}

// SourceConfig selects the input device and frame geometry.
type SourceConfig struct {
	DeviceName string // substring match; empty = default input
	SampleRate int
	Channels   int
	FrameMS    int
	QueueSize  int
}

// NewSource initializes portaudio and prepares a capture stream. The
// returned Source owns the portaudio handle until Close.
func NewSource(cfg SourceConfig) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Device: cfg.DeviceName, Err: fmt.Errorf("portaudio init: %w", err)}
	}
	s := &Source{
		queue: NewQueue(cfg.QueueSize),
		rate:  cfg.SampleRate,
	}
	dev, err := selectDevice(cfg.DeviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, &DeviceError{Device: cfg.DeviceName, Err: err}
	}

	frameSamples := cfg.SampleRate * cfg.FrameMS / 1000
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: frameSamples,
	}, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, &DeviceError{Device: dev.Name, Err: fmt.Errorf("open stream: %w", err)}
	}
	s.stream = stream
	return s, nil
}

// callback runs on the portaudio capture thread. It must not block and must
// not touch the logger; it copies the hardware buffer and hands off.
func (s *Source) callback(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)
	s.queue.Push(Frame{Samples: samples, Time: time.Now()})
}

// Start begins capture.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("source already running")
	}
	if err := s.stream.Start(); err != nil {
		return &DeviceError{Err: fmt.Errorf("start stream: %w", err)}
	}
	s.running = true
	return nil
}

// Stop halts capture. Frames already queued remain available for draining.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	return nil
}

// Close releases the stream and the portaudio handle.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}
	portaudio.Terminate()
	return err
}

// Queue returns the frame queue fed by the capture callback.
func (s *Source) Queue() *Queue {
	return s.queue
}

// Device describes an input device for listing.
type Device struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Channels int    `json:"channels"`
	Default  bool   `json:"default"`
}

// ListDevices enumerates input-capable devices. It manages its own
// portaudio init/terminate pair so it can be called without a Source.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()
	var out []Device
	for i, d := range devs {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Index:    i,
			Name:     d.Name,
			Channels: d.MaxInputChannels,
			Default:  def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
		return nil, fmt.Errorf("no input device matching %q", preferred)
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
