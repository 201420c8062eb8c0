package segment

import (
	"context"
	"sync/atomic"

	"murmur/internal/audio"
	"murmur/internal/config"

	"github.com/sirupsen/logrus"
)

// ModelFactory builds the VAD model for a config. Injectable so tests can
// run the VAD strategy without the native detector.
type ModelFactory func(cfg *config.Config) (Model, error)

// WebRTCFactory is the production model factory.
func WebRTCFactory(cfg *config.Config) (Model, error) {
	return NewWebRTCModel(cfg.Audio.SampleRate, cfg.Segmentation.VADAggressiveness)
}

type strategy struct {
	seg  Segmenter
	mode string
}

// Controller owns the active segmentation strategy and the frame consumer
// loop. It assigns sequence numbers to emitted segments and forwards them
// to the submit function (the dispatcher). All frame processing happens on
// the single goroutine running Run/Process, so emission order is the
// sequence order.
type Controller struct {
	logger  *logrus.Logger
	models  ModelFactory
	submit  func(Segment)
	pending atomic.Pointer[strategy]

	// Owned by the processing goroutine.
	active  *strategy
	nextSeq uint64
}

// NewController builds a controller with the strategy named by cfg.
// A nil models factory selects the WebRTC VAD. Returns *ConfigError when
// the strategy cannot be constructed.
func NewController(cfg *config.Config, models ModelFactory, logger *logrus.Logger, submit func(Segment)) (*Controller, error) {
	if models == nil {
		models = WebRTCFactory
	}
	c := &Controller{
		logger:  logger,
		models:  models,
		submit:  submit,
		nextSeq: 1,
	}
	st, err := c.build(cfg)
	if err != nil {
		return nil, err
	}
	c.active = st
	return c, nil
}

// SetConfig replaces the strategy wholesale. The new strategy is
// constructed here so an invalid config (e.g. unloadable VAD model) is
// rejected synchronously, but it takes effect only between frame
// processing steps. Any in-progress buffer of the old strategy is
// discarded, not flushed: the config arrives as a whole snapshot, so
// every replacement is a hard reset, same-mode parameter tweaks
// included.
func (c *Controller) SetConfig(cfg *config.Config) error {
	st, err := c.build(cfg)
	if err != nil {
		return err
	}
	c.pending.Store(st)
	return nil
}

// Mode returns the active strategy name. Only meaningful from the
// processing goroutine or while it is stopped.
func (c *Controller) Mode() string {
	if p := c.pending.Load(); p != nil {
		return p.mode
	}
	return c.active.mode
}

// Run drains frames until ctx is cancelled or the channel closes.
func (c *Controller) Run(ctx context.Context, frames <-chan audio.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.Process(f)
		}
	}
}

// Process applies a pending config swap, then feeds one frame to the
// active strategy, emitting a sequenced segment if one completes.
func (c *Controller) Process(f audio.Frame) {
	if p := c.pending.Swap(nil); p != nil {
		c.logger.Infof("segmentation strategy now %s (in-progress buffer discarded)", p.mode)
		c.active = p
	}
	if u := c.active.seg.Feed(f); u != nil {
		c.emit(u)
	}
}

// Flush applies the stop-time policy of the active strategy: the legacy
// strategy emits a sufficiently long remainder, the VAD strategy discards.
// Callers drain the frame queue through Process first so no captured
// frame is silently lost.
func (c *Controller) Flush() {
	if p := c.pending.Swap(nil); p != nil {
		c.active = p
	}
	if u := c.active.seg.Flush(); u != nil {
		c.emit(u)
	}
}

func (c *Controller) emit(u *Utterance) {
	seg := Segment{Seq: c.nextSeq, Start: u.Start, Samples: u.Samples}
	c.nextSeq++
	c.submit(seg)
}

func (c *Controller) build(cfg *config.Config) (*strategy, error) {
	switch cfg.Segmentation.Mode {
	case config.ModeLegacy:
		return &strategy{
			mode: config.ModeLegacy,
			seg: NewSilence(SilenceParams{
				SampleRate:         cfg.Audio.SampleRate,
				SilenceThresholdDB: cfg.Segmentation.SilenceThresholdDB,
				MinBufferMS:        cfg.Segmentation.MinBufferMS,
				SilenceDurationMS:  cfg.Segmentation.SilenceDurationMS,
				MaxBufferMS:        cfg.Segmentation.MaxBufferMS,
			}),
		}, nil
	case config.ModeVAD:
		model, err := c.models(cfg)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		return &strategy{
			mode: config.ModeVAD,
			seg: NewVAD(model, VADParams{
				SampleRate:   cfg.Audio.SampleRate,
				Threshold:    cfg.Segmentation.VADThreshold,
				MinSilenceMS: cfg.Segmentation.VADMinSilenceMS,
				MinSpeechMS:  cfg.Segmentation.VADMinSpeechMS,
			}, c.logger),
		}, nil
	default:
		return nil, &ConfigError{Err: errUnknownMode(cfg.Segmentation.Mode)}
	}
}

type errUnknownMode string

func (e errUnknownMode) Error() string {
	return "unknown segmentation mode " + string(e)
}
