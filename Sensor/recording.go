package Sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ArteryPulse/Constants"
)

var ErrEmptyRecording = errors.New("no data to save")

type RecordingInfo struct {
	TotalDataPoints int       `json:"totalDataPoints"`
	RecordingDate   time.Time `json:"recordingDate"`
	StartedAt       time.Time `json:"startedAt"`
	DurationMs      int64     `json:"durationMs"`
	DeviceType      string    `json:"deviceType"`
	DataFormat      string    `json:"dataFormat"`
}

// RecordingData stores the channels column-wise, the way the chart exports
// were always written.
type RecordingData struct {
	Value1    []int   `json:"value1"`
	Value2    []int   `json:"value2"`
	Timestamp []int64 `json:"timestamp"`
}

type Recording struct {
	Info RecordingInfo `json:"recordingInfo"`
	Data RecordingData `json:"data"`
}

// FileName follows arduino_recording_<date>_<time>.json.
func (r *Recording) FileName() string {
	return fmt.Sprintf("arduino_recording_%s_%s.json",
		r.Info.RecordingDate.Format("2006-01-02"),
		r.Info.RecordingDate.Format("15-04-05"))
}

func (r *Recording) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Samples converts the columns back into rows.
func (r *Recording) Samples() []Sample {
	n := min(len(r.Data.Value1), len(r.Data.Value2), len(r.Data.Timestamp))
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Value1: r.Data.Value1[i], Value2: r.Data.Value2[i], Timestamp: r.Data.Timestamp[i]}
	}
	return out
}

func DecodeRecording(data []byte) (*Recording, error) {
	var r Recording
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	return &r, nil
}

// Recorder collects samples between Start and Stop.
type Recorder struct {
	active  bool
	started time.Time
	data    RecordingData
}

// Start clears previously collected samples.
func (r *Recorder) Start(now time.Time) {
	r.active = true
	r.started = now
	r.data = RecordingData{}
}

func (r *Recorder) Active() bool {
	return r.active
}

func (r *Recorder) Len() int {
	return len(r.data.Value1)
}

func (r *Recorder) Add(samples ...Sample) {
	if !r.active {
		return
	}
	for _, s := range samples {
		r.data.Value1 = append(r.data.Value1, s.Value1)
		r.data.Value2 = append(r.data.Value2, s.Value2)
		r.data.Timestamp = append(r.data.Timestamp, s.Timestamp)
	}
}

// Stop ends the recording. It returns ErrEmptyRecording when nothing was
// collected.
func (r *Recorder) Stop(now time.Time) (*Recording, error) {
	r.active = false
	data := r.data
	r.data = RecordingData{}
	if len(data.Value1) == 0 {
		return nil, ErrEmptyRecording
	}
	return &Recording{
		Info: RecordingInfo{
			TotalDataPoints: len(data.Value1),
			RecordingDate:   now,
			StartedAt:       r.started,
			DurationMs:      now.Sub(r.started).Milliseconds(),
			DeviceType:      Constants.DeviceType,
			DataFormat:      Constants.DataFormat,
		},
		Data: data,
	}, nil
}

// Discard drops collected samples without stopping.
func (r *Recorder) Discard() {
	r.data = RecordingData{}
}
