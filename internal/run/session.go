package run

import (
	"context"
	"io"
	"sync"
	"time"

	"murmur/internal/audio"
	"murmur/internal/config"
	"murmur/internal/dispatch"
	"murmur/internal/segment"
	"murmur/internal/stt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// session is one recording run: microphone to dispatcher. Stopping the
// session runs every captured frame through the segmenter, then cancels
// transcription requests not yet started while in-flight ones finish.
type session struct {
	id      string
	logger  *logrus.Logger
	backend stt.Backend
	source  *audio.Source
	ctrl    *segment.Controller
	disp    *dispatch.Dispatcher

	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

// startSession builds the whole capture chain. Construction is ordered
// so nothing starts until every stage could be built; a failure tears
// down the stages already made.
func startSession(cfg *config.Config, logger *logrus.Logger, onSegment func(), onResult func(dispatch.Result), onDrop func(int64)) (*session, error) {
	backend, err := stt.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &session{
		id:      uuid.NewString(),
		logger:  logger,
		backend: backend,
		done:    make(chan struct{}),
	}

	s.disp = dispatch.New(cfg, backend, logger, onResult)
	s.ctrl, err = segment.NewController(cfg, nil, logger, func(seg segment.Segment) {
		onSegment()
		s.disp.Submit(seg)
	})
	if err != nil {
		s.closeBackend()
		return nil, err
	}

	s.source, err = audio.NewSource(audio.SourceConfig{
		DeviceName: cfg.Audio.DeviceName,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		FrameMS:    cfg.Audio.FrameMS,
		QueueSize:  cfg.Audio.QueueSize,
	})
	if err != nil {
		s.closeBackend()
		return nil, err
	}

	s.disp.Start()
	if err := s.source.Start(); err != nil {
		s.disp.Stop()
		s.source.Close()
		s.closeBackend()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.ctrl.Run(ctx, s.source.Queue().Frames())
	}()
	go s.dropWatch(ctx, onDrop)

	logger.WithField("session", s.id).Info("recording started")
	return s, nil
}

// dropWatch logs queue overflow from outside the capture callback,
// which must stay silent.
func (s *session) dropWatch(ctx context.Context, onDrop func(int64)) {
	var last int64
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := s.source.Queue().Dropped()
			if delta := total - last; delta > 0 {
				s.logger.Warnf("frame queue overflow: dropped %d frames (consumer too slow)", delta)
				onDrop(delta)
				last = total
			}
		}
	}
}

// SetConfig swaps the segmentation strategy without restarting capture.
func (s *session) SetConfig(cfg *config.Config) error {
	return s.ctrl.SetConfig(cfg)
}

// stop shuts the chain down in capture order: stop the mic, run every
// already-captured frame through the segmenter, flush, then stop the
// dispatcher. Dispatcher requests still queued are cancelled, not
// transcribed; only in-flight requests run to completion.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		if err := s.source.Stop(); err != nil {
			s.logger.Warnf("stop capture: %v", err)
		}
		s.cancel()
		<-s.done
		for _, f := range s.source.Queue().Drain() {
			s.ctrl.Process(f)
		}
		s.ctrl.Flush()
		s.disp.Stop()
		if err := s.source.Close(); err != nil {
			s.logger.Warnf("close capture: %v", err)
		}
		s.closeBackend()
		s.logger.WithField("session", s.id).Info("recording stopped")
	})
}

func (s *session) closeBackend() {
	if c, ok := s.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warnf("close backend: %v", err)
		}
	}
}
