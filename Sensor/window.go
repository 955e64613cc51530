package Sensor

import "time"

const DefaultCapacity = 3500

// Window keeps the most recent samples in a ring buffer, each stamped with
// the host time it arrived. With a non-zero span, samples received more than
// span before the newest arrival (on Push) or before now (on Prune) are
// dropped.
type Window struct {
	buf  []Sample
	recv []time.Time
	head int
	size int
	span time.Duration
}

func NewWindow(capacity int, span time.Duration) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if span < 0 {
		span = 0
	}
	return &Window{
		buf:  make([]Sample, capacity),
		recv: make([]time.Time, capacity),
		span: span,
	}
}

func (w *Window) Capacity() int {
	return len(w.buf)
}

func (w *Window) Len() int {
	return w.size
}

// Push appends samples received at the given time, evicting the oldest when
// full.
func (w *Window) Push(at time.Time, samples ...Sample) {
	for _, s := range samples {
		if w.size > 0 && s.Timestamp < w.at(w.size-1).Timestamp {
			// device clock went backwards: the board was reset
			w.Reset()
		}
		if w.size == len(w.buf) {
			w.drop()
		}
		i := (w.head + w.size) % len(w.buf)
		w.buf[i] = s
		w.recv[i] = at
		w.size++
	}
	w.Prune(at)
}

// Prune drops samples received more than span before now and reports how
// many were removed. It is a no-op without a span.
func (w *Window) Prune(now time.Time) int {
	if w.span == 0 {
		return 0
	}
	dropped := 0
	for w.size > 0 && now.Sub(w.recv[w.head]) > w.span {
		w.drop()
		dropped++
	}
	return dropped
}

func (w *Window) drop() {
	w.head = (w.head + 1) % len(w.buf)
	w.size--
}

func (w *Window) at(i int) Sample {
	return w.buf[(w.head+i)%len(w.buf)]
}

// Samples returns a copy ordered oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, w.size)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

// Values returns the channel readings ordered oldest first.
func (w *Window) Values(ch Channel) []int {
	out := make([]int, w.size)
	for i := range out {
		out[i] = w.at(i).Value(ch)
	}
	return out
}

// Last returns the newest sample.
func (w *Window) Last() (Sample, bool) {
	if w.size == 0 {
		return Sample{}, false
	}
	return w.at(w.size - 1), true
}

func (w *Window) Reset() {
	w.head = 0
	w.size = 0
}
