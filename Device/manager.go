// Package Device owns the single device connection: the serial session, the
// stream monitor fed by its read loop and the data request schedule.
package Device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/CronJobs"
	"ArteryPulse/Monitor"
	"ArteryPulse/Serial"
	"ArteryPulse/Utils/Logger"
)

var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrEmptyCommand     = errors.New("command is empty")
)

type ConnectRequest struct {
	Port     string `json:"port" binding:"required"`
	BaudRate int    `json:"baud_rate"`
	Mode     string `json:"mode"`
}

type Status struct {
	Connected        bool       `json:"connected"`
	Port             string     `json:"port,omitempty"`
	BaudRate         int        `json:"baud_rate,omitempty"`
	Mode             string     `json:"mode,omitempty"`
	SessionID        string     `json:"session_id,omitempty"`
	ConnectedAt      *time.Time `json:"connected_at,omitempty"`
	DataRate         int        `json:"data_rate"`
	LastDataReceived *time.Time `json:"last_data_received,omitempty"`
	Recording        bool       `json:"recording"`
}

type Options struct {
	Opener      Serial.Opener
	Lister      func() ([]string, error)
	BaudRate    int
	RequestMode string
	Monitor     Monitor.Config
	RetryDelay  time.Duration
	StartDelay  time.Duration
}

type Manager struct {
	opts    Options
	sinks   *Monitor.Fanout
	monitor *Monitor.Monitor

	mu        sync.Mutex
	session   *Serial.Session
	requester *CronJobs.DataRequester
	mode      string
}

func NewManager(opts Options) *Manager {
	if opts.Opener == nil {
		opts.Opener = Serial.OpenPort
	}
	if opts.Lister == nil {
		opts.Lister = Serial.ListPorts
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = Constants.DefaultBaudRate
	}
	if opts.RequestMode == "" {
		opts.RequestMode = Constants.RequestModeSmart
	}
	if opts.StartDelay <= 0 {
		opts.StartDelay = time.Second
	}
	sinks := &Monitor.Fanout{}
	return &Manager{
		opts:    opts,
		sinks:   sinks,
		monitor: Monitor.New(opts.Monitor, sinks),
	}
}

// Subscribe adds a sink for arduino_data, plot_data and connection_status.
func (m *Manager) Subscribe(sink Monitor.Sink) {
	m.sinks.Add(sink)
}

func (m *Manager) Monitor() *Monitor.Monitor {
	return m.monitor
}

func (m *Manager) ListPorts() ([]string, error) {
	return m.opts.Lister()
}

// Connect opens the port and starts streaming. Samples from a previous
// connection are cleared.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (Status, error) {
	if req.BaudRate <= 0 {
		req.BaudRate = m.opts.BaudRate
	}
	if req.Mode == "" {
		req.Mode = m.opts.RequestMode
	}
	if !CronJobs.ValidMode(req.Mode) {
		return Status{}, fmt.Errorf("%w: %q", CronJobs.ErrUnknownMode, req.Mode)
	}

	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return Status{}, ErrAlreadyConnected
	}

	m.monitor.Reset()
	session, err := Serial.Open(ctx, m.opts.Opener, Serial.Config{
		PortName:   req.Port,
		BaudRate:   req.BaudRate,
		RetryDelay: m.opts.RetryDelay,
	}, func(chunk string) { m.monitor.Feed(chunk) })
	if err != nil {
		m.mu.Unlock()
		Logger.Log.Errorw("connection failed", "port", req.Port, "error", err)
		return Status{}, fmt.Errorf("connect to %s: %w", req.Port, err)
	}

	requester, _ := CronJobs.NewDataRequester(m, req.Mode)
	requester.StartDelay = m.opts.StartDelay
	requester.Start()

	m.session = session
	m.requester = requester
	m.mode = req.Mode
	m.mu.Unlock()

	go m.watch(session)

	status := m.Status()
	m.sinks.Publish(Constants.EventConnectionStatus, status)
	return status, nil
}

// watch tears the connection down when the read loop ends by itself, for
// example when the cable is pulled.
func (m *Manager) watch(session *Serial.Session) {
	<-session.Done()

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	requester := m.requester
	m.session, m.requester, m.mode = nil, nil, ""
	m.mu.Unlock()

	Logger.Log.Warnw("device stream ended", "port", session.PortName, "error", session.Err())
	requester.Stop()
	session.Close()
	m.PublishStatus()
}

// Disconnect stops the request schedule, sends the stop command and closes
// the port. A recording in progress stays in the monitor.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	session, requester := m.session, m.requester
	m.session, m.requester, m.mode = nil, nil, ""
	m.mu.Unlock()

	if session == nil {
		return ErrNotConnected
	}

	requester.Stop()
	err := session.Close()
	m.PublishStatus()
	return err
}

func (m *Manager) current() (*Serial.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// SendCommand writes a newline terminated command to the device.
func (m *Manager) SendCommand(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ErrEmptyCommand
	}
	session, err := m.current()
	if err != nil {
		return err
	}
	return session.Write(cmd + "\n")
}

func (m *Manager) RequestData() error {
	session, err := m.current()
	if err != nil {
		return err
	}
	return session.RequestData()
}

func (m *Manager) LastDataReceived() time.Time {
	return m.monitor.LastDataReceived()
}

func (m *Manager) Connected() bool {
	_, err := m.current()
	return err == nil
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	session, mode := m.session, m.mode
	m.mu.Unlock()

	snap := m.monitor.Snapshot()
	status := Status{
		DataRate:  snap.DataRate,
		Recording: snap.Recording,
	}
	if !snap.LastDataReceived.IsZero() {
		last := snap.LastDataReceived
		status.LastDataReceived = &last
	}
	if session != nil {
		opened := session.Opened
		status.Connected = true
		status.Port = session.PortName
		status.BaudRate = session.BaudRate
		status.Mode = mode
		status.SessionID = session.ID
		status.ConnectedAt = &opened
	}
	return status
}

// PublishStatus flushes held back frames and broadcasts connection_status.
func (m *Manager) PublishStatus() {
	m.monitor.Prune()
	m.monitor.Flush()
	m.sinks.Publish(Constants.EventConnectionStatus, m.Status())
}

// Close disconnects if connected. Used on shutdown.
func (m *Manager) Close() {
	if err := m.Disconnect(); err != nil && !errors.Is(err, ErrNotConnected) {
		Logger.Log.Warnw("disconnect on shutdown failed", "error", err)
	}
}
