package CronJobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Utils/Logger"

	"github.com/go-co-op/gocron"
)

const (
	SmartCheckInterval = 3 * time.Second
	SilenceThreshold   = 4 * time.Second
	ContinuousInterval = 5 * time.Second
	HeartbeatInterval  = 2 * time.Second
)

var ErrUnknownMode = errors.New("unknown request mode")

// DataSource is a connected device that can be asked for data.
type DataSource interface {
	LastDataReceived() time.Time
	RequestData() error
}

// ValidMode reports whether mode is smart, continuous or manual.
func ValidMode(mode string) bool {
	switch mode {
	case Constants.RequestModeSmart, Constants.RequestModeContinuous, Constants.RequestModeManual:
		return true
	}
	return false
}

// ShouldRequest is the smart mode rule: ask again once the device has been
// silent for longer than SilenceThreshold.
func ShouldRequest(now, lastData time.Time) bool {
	return lastData.IsZero() || now.Sub(lastData) > SilenceThreshold
}

// DataRequester keeps a device streaming by sending the start command on a
// schedule that depends on the request mode.
type DataRequester struct {
	Source     DataSource
	Mode       string
	StartDelay time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	timer     *time.Timer
	now       func() time.Time
}

func NewDataRequester(source DataSource, mode string) (*DataRequester, error) {
	if !ValidMode(mode) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return &DataRequester{
		Source:     source,
		Mode:       mode,
		StartDelay: time.Second,
		now:        time.Now,
	}, nil
}

// Start sends one request after StartDelay (the board resets when the port
// opens) and schedules the periodic check for the mode.
func (r *DataRequester) Start() *gocron.Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timer = time.AfterFunc(r.StartDelay, func() { r.request("initial") })

	scheduler := gocron.NewScheduler(time.Local)
	scheduler.SingletonModeAll()
	switch r.Mode {
	case Constants.RequestModeSmart:
		scheduler.Every(SmartCheckInterval).WaitForSchedule().Do(func() { r.Check() })
	case Constants.RequestModeContinuous:
		scheduler.Every(ContinuousInterval).WaitForSchedule().Do(func() { r.request("continuous") })
	}
	scheduler.StartAsync()
	r.scheduler = scheduler

	Logger.Log.Infow("data requester started", "mode", r.Mode)
	return scheduler
}

// Check runs one smart mode tick and reports whether a request was sent.
func (r *DataRequester) Check() bool {
	last := r.Source.LastDataReceived()
	if !ShouldRequest(r.now(), last) {
		return false
	}
	Logger.Log.Infow("no data from device, sending request", "since", last)
	return r.request("smart")
}

func (r *DataRequester) request(reason string) bool {
	if err := r.Source.RequestData(); err != nil {
		Logger.Log.Warnw("data request failed", "reason", reason, "error", err)
		return false
	}
	Logger.Log.Debugw("data request sent", "reason", reason)
	return true
}

func (r *DataRequester) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.scheduler != nil {
		r.scheduler.Stop()
		r.scheduler = nil
		Logger.Log.Infow("data requester stopped", "mode", r.Mode)
	}
}

// StatusPublisher pushes the current connection status to subscribers.
type StatusPublisher interface {
	PublishStatus()
}

// StartStatusHeartbeat publishes the status every interval so charts see the
// data rate drop to zero and catch frames held back by the display throttle.
func StartStatusHeartbeat(publisher StatusPublisher, interval time.Duration) *gocron.Scheduler {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	scheduler := gocron.NewScheduler(time.Local)
	scheduler.Every(interval).Do(publisher.PublishStatus)
	scheduler.StartAsync()
	Logger.Log.Infow("status heartbeat started", "interval", interval)
	return scheduler
}
