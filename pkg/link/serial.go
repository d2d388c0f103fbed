package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/protocol"
)

// DefaultBaudRate is the board UART baud rate.
const DefaultBaudRate = 115200

// Errors returned by the link.
var (
	ErrConnected    = errors.New("already connected")
	ErrNotConnected = errors.New("not connected")
	ErrNotReady     = errors.New("board did not report ready")
	ErrMode         = errors.New("run configuration has no mode")
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// openPort opens a serial port. Tests replace it with an in-memory pipe.
var openPort = func(name string, baudRate int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baudRate})
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial is a connection to a board over a serial port.
type Serial struct {
	port         string
	baudRate     int
	readyTimeout time.Duration
	channels     int

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	stream    *stream
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// New creates a serial link from the serial section of the configuration.
// channels is the number of populated board channels.
func New(cfg config.SerialConfig, channels int) *Serial {
	baudRate := cfg.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:         cfg.Port,
		baudRate:     baudRate,
		readyTimeout: cfg.ReadyTimeout,
		channels:     channels,
		stream:       newStream(channels, DefaultBufferSize),
	}
}

// Connect opens the port, starts reading and waits for the board banner.
func (d *Serial) Connect() error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return ErrConnected
	}

	conn, err := openPort(d.port, d.baudRate)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = cancel
	d.done = make(chan struct{})
	d.connected = true
	d.stream = newStream(d.channels, DefaultBufferSize)
	st := d.stream
	go func() {
		defer close(d.done)
		st.run(ctx, conn)
	}()
	d.mu.Unlock()

	if d.readyTimeout <= 0 {
		return nil
	}
	select {
	case <-st.ready:
		log.Printf("Board %s ready on %s", st.HWID(), d.port)
		return nil
	case <-time.After(d.readyTimeout):
		d.Close()
		return fmt.Errorf("%w within %v on %s", ErrNotReady, d.readyTimeout, d.port)
	}
}

// Close closes the port and stops reading. The Rows and Messages channels
// are closed once the reader has stopped.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	<-d.done
	d.conn = nil
	d.connected = false
	return nil
}

// Rows returns the channel of parsed data rows.
func (d *Serial) Rows() <-chan Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stream.rows
}

// Messages returns the channel of non-row lines: banner, echo, status and
// diagnostics.
func (d *Serial) Messages() <-chan string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stream.messages
}

// Start sends cfg to the board as protocol lines.
func (d *Serial) Start(cfg protocol.RunConfig) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	if err := send(d.conn, cfg); err != nil {
		return fmt.Errorf("failed to send run configuration: %w", err)
	}
	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// HWID returns the board identifier from the banner, empty until seen.
func (d *Serial) HWID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stream.HWID()
}
