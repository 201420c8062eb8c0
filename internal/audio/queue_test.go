package audio

import (
	"testing"
	"time"
)

func frame(n int) Frame {
	return Frame{Samples: make([]float32, n), Time: time.Now()}
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 5; i++ {
		f := frame(4)
		f.Samples[0] = float32(i)
		q.Push(f)
	}
	for i := 0; i < 5; i++ {
		f := <-q.Frames()
		if f.Samples[0] != float32(i) {
			t.Fatalf("frame %d out of order: got %v", i, f.Samples[0])
		}
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(2)
	for i := 0; i < 4; i++ {
		f := frame(1)
		f.Samples[0] = float32(i)
		q.Push(f)
	}
	if q.Dropped() != 2 {
		t.Fatalf("expected 2 dropped frames, got %d", q.Dropped())
	}
	// Oldest were evicted; the survivors are the newest two in order.
	first := <-q.Frames()
	second := <-q.Frames()
	if first.Samples[0] != 2 || second.Samples[0] != 3 {
		t.Fatalf("expected frames 2,3 to survive, got %v,%v", first.Samples[0], second.Samples[0])
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 3; i++ {
		q.Push(frame(1))
	}
	if got := len(q.Drain()); got != 3 {
		t.Fatalf("drain returned %d frames, want 3", got)
	}
	if got := len(q.Drain()); got != 0 {
		t.Fatalf("second drain returned %d frames, want 0", got)
	}
}

func TestFrameDuration(t *testing.T) {
	f := frame(320)
	if d := f.Duration(16000); d != 20*time.Millisecond {
		t.Fatalf("duration = %v, want 20ms", d)
	}
}
