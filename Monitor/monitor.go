// Package Monitor is the single stream component behind every chart: it
// turns raw device chunks into a rolling window, axis ranges, rate figures
// and throttled frames for subscribers.
package Monitor

import (
	"errors"
	"math"
	"sync"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Sensor"
	"ArteryPulse/Utils/Logger"
)

var ErrInvalidChannel = errors.New("channel must be 1 or 2")

// Sink receives published events. SSE and the bridge socket implement it.
type Sink interface {
	Publish(event string, payload any)
}

// Fanout forwards events to every added sink. Sinks can be added after the
// monitor is built, which lets the bridge hub subscribe to the manager that
// it also controls.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

func (f *Fanout) Add(sink Sink) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) Publish(event string, payload any) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Publish(event, payload)
	}
}

type Config struct {
	MaxPoints int
	// TimeSpan in milliseconds of host arrival time; 0 keeps MaxPoints only.
	TimeSpan        int64
	DisplayInterval time.Duration
	AutoZoom1       bool
	AutoZoom2       bool
}

func DefaultConfig() Config {
	return Config{
		MaxPoints:       Sensor.DefaultCapacity,
		DisplayInterval: 100 * time.Millisecond,
		AutoZoom1:       true,
		AutoZoom2:       true,
	}
}

// DataLine is the arduino_data payload: one raw line and the server time it
// arrived, in unix seconds.
type DataLine struct {
	Data      string  `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// Frame is the plot_data payload. Seconds holds, for each sample, the time
// since the first sample of the session arrived.
type Frame struct {
	Samples  []Sensor.Sample `json:"samples"`
	Seconds  []float64       `json:"seconds"`
	Range1   Sensor.Range    `json:"range1"`
	Range2   Sensor.Range    `json:"range2"`
	DataRate int             `json:"data_rate"`
	Total    int             `json:"total"`
}

type Snapshot struct {
	Samples          []Sensor.Sample `json:"samples"`
	Range1           Sensor.Range    `json:"range1"`
	Range2           Sensor.Range    `json:"range2"`
	AutoZoom1        bool            `json:"auto_zoom1"`
	AutoZoom2        bool            `json:"auto_zoom2"`
	DataRate         int             `json:"data_rate"`
	LastDataReceived time.Time       `json:"last_data_received"`
	Recording        bool            `json:"recording"`
	RecordedPoints   int             `json:"recorded_points"`
}

type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	parser    Sensor.Parser
	window    *Sensor.Window
	scale1    *Sensor.Scaler
	scale2    *Sensor.Scaler
	rate      Sensor.RateMeter
	recorder  Sensor.Recorder
	pending   []Sensor.Sample
	seconds   []float64
	started   time.Time
	lastFrame time.Time
	sink      Sink
	now       func() time.Time
}

func New(cfg Config, sink Sink) *Monitor {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = Sensor.DefaultCapacity
	}
	m := &Monitor{
		cfg:    cfg,
		window: Sensor.NewWindow(cfg.MaxPoints, time.Duration(cfg.TimeSpan)*time.Millisecond),
		scale1: Sensor.NewScaler(),
		scale2: Sensor.NewScaler(),
		sink:   sink,
		now:    time.Now,
	}
	m.scale1.AutoZoom = cfg.AutoZoom1
	m.scale2.AutoZoom = cfg.AutoZoom2
	return m
}

// SetClock replaces the time source. Tests use it to step time.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Feed consumes one chunk of device text and returns how many samples it
// produced.
func (m *Monitor) Feed(chunk string) int {
	m.mu.Lock()
	now := m.now()
	samples, lines := m.parser.Feed(chunk)

	var events []event
	for _, line := range lines {
		events = append(events, event{Constants.EventArduinoData, DataLine{
			Data:      line,
			Timestamp: float64(now.UnixMilli()) / 1000,
		}})
	}

	m.rate.Add(len(samples), now)
	if len(samples) > 0 {
		if m.started.IsZero() {
			m.started = now
		}
		elapsed := math.Round(now.Sub(m.started).Seconds()*100) / 100
		m.window.Push(now, samples...)
		m.recorder.Add(samples...)
		m.pending = append(m.pending, samples...)
		for range samples {
			m.seconds = append(m.seconds, elapsed)
		}
		m.scale1.Update(m.window.Values(Sensor.Channel1), now)
		m.scale2.Update(m.window.Values(Sensor.Channel2), now)
		if now.Sub(m.lastFrame) >= m.cfg.DisplayInterval {
			events = append(events, event{Constants.EventPlotData, m.takeFrame(now)})
		}
	}
	m.mu.Unlock()

	m.publish(events)
	return len(samples)
}

type event struct {
	name    string
	payload any
}

// publish runs outside the lock so a slow sink never stalls the read loop
// while handlers wait on Snapshot.
func (m *Monitor) publish(events []event) {
	if m.sink == nil {
		return
	}
	for _, e := range events {
		m.sink.Publish(e.name, e.payload)
	}
}

func (m *Monitor) takeFrame(now time.Time) Frame {
	frame := Frame{
		Samples:  m.pending,
		Seconds:  m.seconds,
		Range1:   m.scale1.Range,
		Range2:   m.scale2.Range,
		DataRate: m.rate.Rate(now),
		Total:    m.window.Len(),
	}
	m.pending = nil
	m.seconds = nil
	m.lastFrame = now
	return frame
}

// Flush publishes samples still waiting for the display interval.
func (m *Monitor) Flush() {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	frame := m.takeFrame(m.now())
	m.mu.Unlock()

	m.publish([]event{{Constants.EventPlotData, frame}})
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.window.Prune(now)
	return Snapshot{
		Samples:          m.window.Samples(),
		Range1:           m.scale1.Range,
		Range2:           m.scale2.Range,
		AutoZoom1:        m.scale1.AutoZoom,
		AutoZoom2:        m.scale2.AutoZoom,
		DataRate:         m.rate.Rate(now),
		LastDataReceived: m.rate.LastData(),
		Recording:        m.recorder.Active(),
		RecordedPoints:   m.recorder.Len(),
	}
}

// Reset clears samples, the line buffer, zoom and any recorded data. An
// active recording keeps running with an empty buffer.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parser.Reset()
	m.window.Reset()
	m.rate.Reset()
	m.recorder.Discard()
	m.pending = nil
	m.seconds = nil
	m.started = time.Time{}
	m.scale1.Range = Sensor.DefaultRange
	m.scale2.Range = Sensor.DefaultRange
}

// Prune drops samples that fell out of the time span. The heartbeat calls it
// so a stalled device empties the chart instead of freezing it.
func (m *Monitor) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.Prune(m.now())
}

func (m *Monitor) scaler(ch Sensor.Channel) (*Sensor.Scaler, error) {
	switch ch {
	case Sensor.Channel1:
		return m.scale1, nil
	case Sensor.Channel2:
		return m.scale2, nil
	}
	return nil, ErrInvalidChannel
}

// ResetZoom snaps a channel's range to the data currently held.
func (m *Monitor) ResetZoom(ch Sensor.Channel) (Sensor.Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.scaler(ch)
	if err != nil {
		return Sensor.Range{}, err
	}
	return s.Reset(m.window.Values(ch)), nil
}

func (m *Monitor) SetAutoZoom(ch Sensor.Channel, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.scaler(ch)
	if err != nil {
		return err
	}
	s.AutoZoom = on
	return nil
}

func (m *Monitor) StartRecording() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder.Start(m.now())
	Logger.Log.Infow("recording started")
}

func (m *Monitor) StopRecording() (*Sensor.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.recorder.Stop(m.now())
	if err != nil {
		return nil, err
	}
	Logger.Log.Infow("recording stopped", "points", rec.Info.TotalDataPoints)
	return rec, nil
}

func (m *Monitor) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorder.Active()
}

func (m *Monitor) LastDataReceived() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate.LastData()
}

func (m *Monitor) DataRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate.Rate(m.now())
}
