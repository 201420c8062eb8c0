package audio

import (
	"sync/atomic"
	"time"
)

// Frame is one fixed-duration block of mono PCM samples, timestamped at
// capture time. Frames are immutable once enqueued.
type Frame struct {
	Samples []float32
	Time    time.Time
}

// Duration returns the frame length at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(sampleRate)
}

// Queue is a bounded single-producer single-consumer frame queue with a
// drop-oldest overflow policy. Push never blocks; the capture callback
// must not stall on a slow consumer. Dropped frames are counted, not
// logged here, so the producer side stays allocation- and IO-free.
type Queue struct {
	ch      chan Frame
	dropped atomic.Int64
}

// NewQueue returns a queue holding up to capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Frame, capacity)}
}

// Push enqueues f, evicting the oldest frame when full.
func (q *Queue) Push(f Frame) {
	select {
	case q.ch <- f:
		return
	default:
	}
	// Full: evict one, count it, retry once. The retry can still lose the
	// race against the consumer freeing slots, in which case the slot went
	// to the consumer and this push succeeds.
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}
	select {
	case q.ch <- f:
	default:
		q.dropped.Add(1)
	}
}

// Frames exposes the consumer side of the queue.
func (q *Queue) Frames() <-chan Frame {
	return q.ch
}

// Dropped returns the running count of frames lost to overflow.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Drain removes and returns all frames currently buffered without blocking.
func (q *Queue) Drain() []Frame {
	var out []Frame
	for {
		select {
		case f := <-q.ch:
			out = append(out, f)
		default:
			return out
		}
	}
}
