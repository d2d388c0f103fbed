package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/engine"
	"github.com/itohio/pvstab/pkg/protocol"
)

const defaultReadyTimeout = 5 * time.Second

// Loopback runs the board engine in-process against a simulated bench and
// speaks to it through pipes, exactly as Serial speaks to a real board.
type Loopback struct {
	cfg *config.Config
	sim *bench.Sim

	mu        sync.RWMutex
	toBoard   *io.PipeWriter
	stream    *stream
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
}

// NewLoopback creates a simulated board from cfg. A nil cfg uses defaults.
func NewLoopback(cfg *config.Config) *Loopback {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Loopback{
		cfg:    cfg,
		sim:    bench.NewSim(cfg),
		stream: newStream(cfg.Board.Channels, DefaultBufferSize),
	}
}

// Bench returns the simulated bench so callers can inspect or disturb it.
func (d *Loopback) Bench() *bench.Sim {
	return d.sim
}

// Connect boots the engine and waits for its banner.
func (d *Loopback) Connect() error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return ErrConnected
	}

	boardIn, hostOut := io.Pipe()
	hostIn, boardOut := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	d.toBoard = hostOut
	d.cancel = cancel
	d.stream = newStream(d.cfg.Board.Channels, DefaultBufferSize)
	d.connected = true
	st := d.stream

	e := engine.New(d.cfg, d.sim, boardOut)
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		st.run(ctx, hostIn)
		hostIn.Close()
	}()
	go func() {
		defer d.wg.Done()
		defer boardOut.Close()
		if err := e.Boot(); err != nil {
			log.Printf("Simulated board failed to boot: %v", err)
			return
		}
		if err := e.Serve(ctx, boardIn); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Simulated board stopped: %v", err)
		}
	}()
	d.mu.Unlock()

	timeout := d.cfg.Serial.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	select {
	case <-st.ready:
		return nil
	case <-time.After(timeout):
		d.Close()
		return fmt.Errorf("%w: simulated board", ErrNotReady)
	}
}

// Close stops the engine and waits for both goroutines.
func (d *Loopback) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.cancel()
	d.toBoard.Close()
	d.wg.Wait()
	d.connected = false
	return nil
}

// Rows returns the channel of parsed data rows.
func (d *Loopback) Rows() <-chan Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stream.rows
}

// Messages returns the channel of non-row lines.
func (d *Loopback) Messages() <-chan string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stream.messages
}

// Start sends cfg to the simulated board.
func (d *Loopback) Start(cfg protocol.RunConfig) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	if err := send(d.toBoard, cfg); err != nil {
		return fmt.Errorf("failed to send run configuration: %w", err)
	}
	return nil
}

// IsConnected returns whether the simulated board is running.
func (d *Loopback) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// HWID returns the simulated board identifier.
func (d *Loopback) HWID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id := d.stream.HWID(); id != "" {
		return id
	}
	return strconv.Itoa(d.cfg.Board.ID)
}
