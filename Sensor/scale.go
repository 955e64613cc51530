package Sensor

import (
	"math"
	"time"
)

// Range is a y-axis domain for one channel.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

var DefaultRange = Range{Min: 0, Max: 100}

const minVisibleSpan = 10

// recentWindow picks how many of the newest readings drive the axis range.
func recentWindow(n int) int {
	switch {
	case n <= 20:
		return n
	case n <= 50:
		return max(20, n*8/10)
	case n <= 100:
		return 100
	default:
		return 1000
	}
}

func padding(spread int) float64 {
	switch {
	case spread < 5:
		return 5
	case spread < 20:
		return float64(spread) * 0.3
	case spread < 50:
		return float64(spread) * 0.2
	default:
		return float64(spread) * 0.15
	}
}

// CalculateRange returns a padded range around the most recent readings.
// Readings are non-negative so the lower bound never goes below zero.
func CalculateRange(values []int) Range {
	if len(values) == 0 {
		return DefaultRange
	}
	size := min(recentWindow(len(values)), len(values))
	recent := values[len(values)-size:]

	lo, hi := recent[0], recent[0]
	for _, v := range recent[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	pad := padding(hi - lo)
	r := Range{
		Min: max(0, int(math.Floor(float64(lo)-pad))),
		Max: int(math.Ceil(float64(hi) + pad)),
	}
	if r.Max-r.Min < minVisibleSpan {
		center := float64(r.Max+r.Min) / 2
		r = Range{
			Min: max(0, int(math.Floor(center-minVisibleSpan/2))),
			Max: int(math.Ceil(center + minVisibleSpan/2)),
		}
	}
	return r
}

// UpdateInterval is how often a channel's range may be recomputed.
func UpdateInterval(held int) time.Duration {
	if held > 50 {
		return 150 * time.Millisecond
	}
	return 300 * time.Millisecond
}

// Hysteresis is how far min or max must move before a new range is adopted.
func Hysteresis(held int) int {
	if held > 30 {
		return 2
	}
	return 1
}

// Scaler tracks the displayed range of one channel.
type Scaler struct {
	Range      Range
	AutoZoom   bool
	lastUpdate time.Time
}

func NewScaler() *Scaler {
	return &Scaler{Range: DefaultRange, AutoZoom: true}
}

// Update recomputes the range when auto zoom is on and the update interval
// has passed. It reports whether the displayed range changed.
func (s *Scaler) Update(values []int, now time.Time) bool {
	if !s.AutoZoom || len(values) == 0 {
		return false
	}
	if !s.lastUpdate.IsZero() && now.Sub(s.lastUpdate) <= UpdateInterval(len(values)) {
		return false
	}
	s.lastUpdate = now

	next := CalculateRange(values)
	threshold := Hysteresis(len(values))
	if absInt(s.Range.Min-next.Min) > threshold || absInt(s.Range.Max-next.Max) > threshold {
		s.Range = next
		return true
	}
	return false
}

// Reset snaps the range to the current readings, ignoring hysteresis.
func (s *Scaler) Reset(values []int) Range {
	s.Range = CalculateRange(values)
	return s.Range
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
