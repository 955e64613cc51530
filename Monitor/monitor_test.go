package Monitor

import (
	"sync"
	"testing"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Sensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	event   string
	payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []published
}

func (s *recordingSink) Publish(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, published{event, payload})
}

func (s *recordingSink) named(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, e := range s.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(cfg Config) (*Monitor, *recordingSink, *stepClock) {
	sink := &recordingSink{}
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	m := New(cfg, sink)
	m.SetClock(clock.now)
	return m, sink, clock
}

func TestFeedParsesAndPublishes(t *testing.T) {
	m, sink, _ := newTestMonitor(DefaultConfig())

	n := m.Feed("$12&34#1000\n")
	require.Equal(t, 1, n)

	snap := m.Snapshot()
	require.Len(t, snap.Samples, 1)
	assert.Equal(t, Sensor.Sample{Value1: 12, Value2: 34, Timestamp: 1000}, snap.Samples[0])
	assert.Equal(t, Sensor.Range{Min: 7, Max: 17}, snap.Range1)
	assert.Equal(t, Sensor.Range{Min: 29, Max: 39}, snap.Range2)

	lines := sink.named(Constants.EventArduinoData)
	require.Len(t, lines, 1)
	assert.Equal(t, "$12&34#1000", lines[0].(DataLine).Data)

	frames := sink.named(Constants.EventPlotData)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].(Frame).Samples, 1)
}

func TestFeedSplitChunks(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultConfig())

	assert.Zero(t, m.Feed("$12&3"))
	assert.Equal(t, 1, m.Feed("4#1000\n"))
	assert.Len(t, m.Snapshot().Samples, 1)
}

func TestFeedIgnoresNoise(t *testing.T) {
	m, sink, _ := newTestMonitor(DefaultConfig())

	assert.Zero(t, m.Feed("hello\nready\n"))
	assert.Empty(t, m.Snapshot().Samples)
	assert.Empty(t, sink.named(Constants.EventArduinoData))
}

func TestFramesAreThrottled(t *testing.T) {
	m, sink, clock := newTestMonitor(DefaultConfig())

	m.Feed("$1&1#1\n")
	clock.advance(20 * time.Millisecond)
	m.Feed("$2&2#2\n")
	clock.advance(20 * time.Millisecond)
	m.Feed("$3&3#3\n")
	assert.Len(t, sink.named(Constants.EventPlotData), 1)

	clock.advance(100 * time.Millisecond)
	m.Feed("$4&4#4\n")
	frames := sink.named(Constants.EventPlotData)
	require.Len(t, frames, 2)
	assert.Len(t, frames[1].(Frame).Samples, 3)

	clock.advance(10 * time.Millisecond)
	m.Feed("$5&5#5\n")
	m.Flush()
	frames = sink.named(Constants.EventPlotData)
	require.Len(t, frames, 3)
	assert.Equal(t, []Sensor.Sample{{Value1: 5, Value2: 5, Timestamp: 5}}, frames[2].(Frame).Samples)

	m.Flush()
	assert.Len(t, sink.named(Constants.EventPlotData), 3)
}

func TestWindowCapacityHonoured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPoints = 3
	m, _, _ := newTestMonitor(cfg)

	m.Feed("$1&1#1\n$2&2#2\n$3&3#3\n$4&4#4\n$5&5#5\n")
	snap := m.Snapshot()
	require.Len(t, snap.Samples, 3)
	assert.Equal(t, int64(3), snap.Samples[0].Timestamp)
}

func TestRecordingLifecycle(t *testing.T) {
	m, _, clock := newTestMonitor(DefaultConfig())

	m.Feed("$1&1#1\n")
	m.StartRecording()
	assert.True(t, m.Recording())
	m.Feed("$2&3#4\n$5&6#7\n")
	clock.advance(2 * time.Second)

	rec, err := m.StopRecording()
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Info.TotalDataPoints)
	assert.Equal(t, int64(2000), rec.Info.DurationMs)
	assert.Equal(t, []int{2, 5}, rec.Data.Value1)

	_, err = m.StopRecording()
	assert.ErrorIs(t, err, Sensor.ErrEmptyRecording)
}

func TestResetAndZoom(t *testing.T) {
	m, _, _ := newTestMonitor(DefaultConfig())
	m.Feed("$500&600#1\n")

	require.NoError(t, m.SetAutoZoom(Sensor.Channel1, false))
	assert.ErrorIs(t, m.SetAutoZoom(Sensor.Channel(3), true), ErrInvalidChannel)

	r, err := m.ResetZoom(Sensor.Channel2)
	require.NoError(t, err)
	assert.Equal(t, Sensor.Range{Min: 595, Max: 605}, r)

	m.Reset()
	snap := m.Snapshot()
	assert.Empty(t, snap.Samples)
	assert.Equal(t, Sensor.DefaultRange, snap.Range1)
	assert.Equal(t, Sensor.DefaultRange, snap.Range2)
	assert.False(t, snap.AutoZoom1)
	assert.True(t, snap.AutoZoom2)
}

func TestLastDataAndRate(t *testing.T) {
	m, _, clock := newTestMonitor(DefaultConfig())
	start := clock.t

	m.Feed("$1&1#1\n$1&1#2\n")
	assert.Equal(t, start, m.LastDataReceived())

	clock.advance(time.Second)
	m.Feed("$1&1#3\n")
	assert.Equal(t, 3, m.DataRate())
}

func TestSinksFanOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	var f Fanout
	f.Add(a)
	f.Add(nil)
	f.Add(b)
	f.Publish("x", 1)

	assert.Len(t, a.named("x"), 1)
	assert.Len(t, b.named("x"), 1)
}

func TestStalledDeviceEmptiesWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeSpan = 6000
	m, _, clock := newTestMonitor(cfg)

	m.Feed("$1&1#1\n$2&2#2\n")
	clock.advance(4 * time.Second)
	m.Feed("$3&3#3\n")
	assert.Zero(t, m.Prune())
	assert.Len(t, m.Snapshot().Samples, 3)

	clock.advance(3 * time.Second)
	assert.Equal(t, 2, m.Prune())
	assert.Len(t, m.Snapshot().Samples, 1)

	// no Prune call: the snapshot itself drops what fell out of the span
	clock.advance(10 * time.Second)
	assert.Empty(t, m.Snapshot().Samples)
}

func TestFramesCarryElapsedSeconds(t *testing.T) {
	m, sink, clock := newTestMonitor(DefaultConfig())

	m.Feed("$1&1#1\n")
	clock.advance(1250 * time.Millisecond)
	m.Feed("$2&2#2\n$3&3#3\n")

	frames := sink.named(Constants.EventPlotData)
	require.Len(t, frames, 2)
	assert.Equal(t, []float64{0}, frames[0].(Frame).Seconds)
	assert.Equal(t, []float64{1.25, 1.25}, frames[1].(Frame).Seconds)

	m.Reset()
	clock.advance(time.Second)
	m.Feed("$4&4#4\n")
	frames = sink.named(Constants.EventPlotData)
	assert.Equal(t, []float64{0}, frames[len(frames)-1].(Frame).Seconds)
}
