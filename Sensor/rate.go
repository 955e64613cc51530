package Sensor

import (
	"math"
	"time"
)

// RateMeter counts samples per second and remembers when data last arrived.
type RateMeter struct {
	count       int
	bucketStart time.Time
	rate        int
	lastData    time.Time
}

func (m *RateMeter) Add(n int, now time.Time) {
	if m.bucketStart.IsZero() {
		m.bucketStart = now
	}
	m.count += n
	if n > 0 {
		m.lastData = now
	}
	m.roll(now)
}

func (m *RateMeter) roll(now time.Time) {
	elapsed := now.Sub(m.bucketStart)
	if m.bucketStart.IsZero() || elapsed < time.Second {
		return
	}
	m.rate = int(math.Round(float64(m.count) / elapsed.Seconds()))
	m.count = 0
	m.bucketStart = now
}

// Rate returns the samples per second measured over the last full bucket.
func (m *RateMeter) Rate(now time.Time) int {
	m.roll(now)
	return m.rate
}

func (m *RateMeter) LastData() time.Time {
	return m.lastData
}

func (m *RateMeter) Reset() {
	*m = RateMeter{}
}
