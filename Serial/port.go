package Serial

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// ReadTimeout bounds each blocking read so the loop notices cancellation
// even when the driver does not unblock on Close.
const ReadTimeout = 100 * time.Millisecond

type Port interface {
	io.ReadWriteCloser
}

// Opener opens a named port at a baud rate.
type Opener func(name string, baudRate int) (Port, error)

// OpenPort opens a real serial device with 8 data bits, no parity, one stop
// bit and no flow control.
func OpenPort(name string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return port, nil
}

// ListPorts returns the names of the serial ports present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}
