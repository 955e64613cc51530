package Serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"ArteryPulse/Constants"
	"ArteryPulse/Utils/Logger"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("session closed")

type Config struct {
	PortName   string
	BaudRate   int
	Attempts   uint
	RetryDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = Constants.DefaultBaudRate
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

// Session is one open connection to a device with a single read loop.
type Session struct {
	ID       string
	PortName string
	BaudRate int
	Opened   time.Time

	port    Port
	writeMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error

	errMu   sync.Mutex
	readErr error
}

// Open opens the port, retrying while it is still held by a previous
// session, and starts the read loop. onChunk is called from the loop
// goroutine for every non-empty read.
func Open(ctx context.Context, opener Opener, cfg Config, onChunk func(string)) (*Session, error) {
	cfg.setDefaults()
	if cfg.PortName == "" {
		return nil, errors.New("port name is required")
	}

	port, err := retry.DoWithData(
		func() (Port, error) {
			return opener(cfg.PortName, cfg.BaudRate)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts),
		retry.Delay(cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			Logger.Log.Warnw("retrying port open", "port", cfg.PortName, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		PortName: cfg.PortName,
		BaudRate: cfg.BaudRate,
		Opened:   time.Now(),
		port:     port,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.readLoop(loopCtx, onChunk)

	Logger.Log.Infow("serial session opened", "session", s.ID, "port", s.PortName, "baud", s.BaudRate)
	return s, nil
}

func (s *Session) readLoop(ctx context.Context, onChunk func(string)) {
	defer close(s.done)
	buf := make([]byte, 1024)
	for {
		n, err := s.port.Read(buf)
		if n > 0 && ctx.Err() == nil {
			onChunk(string(buf[:n]))
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				Logger.Log.Warnw("read loop stopped", "session", s.ID, "error", err)
			}
			s.errMu.Lock()
			s.readErr = err
			s.errMu.Unlock()
			return
		}
	}
}

// Done is closed when the read loop has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is the error that ended the read loop on its own, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

func (s *Session) Write(cmd string) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.port, cmd); err != nil {
		return fmt.Errorf("write to %s: %w", s.PortName, err)
	}
	return nil
}

// RequestData asks the device to start streaming.
func (s *Session) RequestData() error {
	return s.Write(Constants.StartCommand)
}

// Close stops the device stream, ends the read loop and closes the port.
// It returns once the loop goroutine has exited.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.Write(Constants.StopCommand); err != nil {
			Logger.Log.Debugw("stop command not sent", "session", s.ID, "error", err)
		}
		s.cancel()
		s.closeErr = s.port.Close()
		<-s.done
		Logger.Log.Infow("serial session closed", "session", s.ID, "port", s.PortName)
	})
	return s.closeErr
}
