// Package dispatch runs transcription requests against a backend with
// bounded concurrency and delivers results in segment order.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"murmur/internal/config"
	"murmur/internal/segment"
	"murmur/internal/stt"

	"github.com/sirupsen/logrus"
)

// Result is the outcome for one segment. Exactly one of Text and Err is
// meaningful; Err is set when all attempts failed or the request was
// cancelled.
type Result struct {
	Seq   uint64
	Text  string
	Err   error
	Start time.Time
	Audio time.Duration
}

// Dispatcher fans segments out to worker goroutines and reorders the
// finished results so delivery follows Seq, not completion order.
type Dispatcher struct {
	backend stt.Backend
	logger  *logrus.Logger
	deliver func(Result)

	sampleRate int
	workers    int
	retryMax   int
	retryBase  time.Duration
	timeout    time.Duration

	requests chan segment.Segment

	mu sync.Mutex
	// ready holds finished results waiting for earlier seqs. Accepted
	// work bounds it by workers plus queue capacity; queue-full
	// rejections also park here until the seqs ahead of them resolve,
	// but only as small error records without audio.
	ready   map[uint64]Result
	nextSeq uint64
	pending int

	deliverMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped dispatcher; call Start before Submit.
func New(cfg *config.Config, backend stt.Backend, logger *logrus.Logger, deliver func(Result)) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		backend:    backend,
		logger:     logger,
		deliver:    deliver,
		sampleRate: cfg.Audio.SampleRate,
		workers:    cfg.Dispatch.Concurrency,
		retryMax:   cfg.Dispatch.RetryMax,
		retryBase:  time.Duration(cfg.Dispatch.RetryBaseMS) * time.Millisecond,
		timeout:    time.Duration(cfg.Dispatch.RequestTimeoutSec) * time.Second,
		requests:   make(chan segment.Segment, cfg.Dispatch.QueueSize),
		ready:      map[uint64]Result{},
		nextSeq:    1,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Submit enqueues one segment. A full queue rejects the segment
// immediately with an error result on its own sequence number; nothing
// is dropped silently.
func (d *Dispatcher) Submit(seg segment.Segment) {
	d.mu.Lock()
	d.pending++
	d.mu.Unlock()
	select {
	case d.requests <- seg:
	default:
		d.logger.WithField("seq", seg.Seq).Warn("transcription queue full, rejecting segment")
		d.finish(Result{
			Seq:   seg.Seq,
			Err:   fmt.Errorf("transcription queue full (%d pending)", cap(d.requests)),
			Start: seg.Start,
			Audio: seg.Duration(d.sampleRate),
		})
	}
}

// Stop drains the queue, cancelling anything not yet started, lets
// in-flight requests finish, and waits for the workers to exit. The
// dispatcher cannot be restarted.
func (d *Dispatcher) Stop() {
	d.cancelQueued()
	close(d.requests)
	d.wg.Wait()
	d.cancel()
}

// Wait blocks until every submitted segment has been delivered, without
// shutting the dispatcher down.
func (d *Dispatcher) Wait() {
	for {
		d.mu.Lock()
		idle := d.pending == 0
		d.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (d *Dispatcher) cancelQueued() {
	for {
		select {
		case seg := <-d.requests:
			d.finish(Result{
				Seq:   seg.Seq,
				Err:   context.Canceled,
				Start: seg.Start,
				Audio: seg.Duration(d.sampleRate),
			})
		default:
			return
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for seg := range d.requests {
		res := Result{
			Seq:   seg.Seq,
			Start: seg.Start,
			Audio: seg.Duration(d.sampleRate),
		}
		res.Text, res.Err = d.transcribe(seg)
		d.finish(res)
	}
}

func (d *Dispatcher) transcribe(seg segment.Segment) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		text, err := d.backend.Transcribe(ctx, seg.Samples, d.sampleRate)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !stt.Transient(err) || attempt >= d.retryMax {
			return "", err
		}
		delay := d.backoff(attempt)
		d.logger.WithFields(logrus.Fields{
			"seq":     seg.Seq,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warnf("transient transcription failure, retrying: %v", err)
		select {
		case <-time.After(delay):
		case <-d.ctx.Done():
			return "", lastErr
		}
	}
}

// backoff doubles the base delay per attempt with a little jitter so
// parallel retries against a rate-limited API spread out.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.retryBase << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(d.retryBase)/2 + 1))
	return delay + jitter
}

// finish parks a result in the reorder buffer and delivers the maximal
// in-order run starting at nextSeq. deliverMu keeps concurrent runs from
// interleaving their deliveries.
func (d *Dispatcher) finish(res Result) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	d.ready[res.Seq] = res
	var due []Result
	for {
		r, ok := d.ready[d.nextSeq]
		if !ok {
			break
		}
		delete(d.ready, d.nextSeq)
		d.nextSeq++
		due = append(due, r)
	}
	d.mu.Unlock()

	for _, r := range due {
		d.deliver(r)
	}

	d.mu.Lock()
	d.pending -= len(due)
	d.mu.Unlock()
}
