// Package engine is the board main loop: received bytes are framed into
// lines, ingested into run configurations and executed one run at a time by
// the controllers. Everything the host sees, data rows included, is written
// to a single output stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/control"
	"github.com/itohio/pvstab/pkg/protocol"
)

// Logf traces engine events. It never writes to the host stream; firmware
// builds replace it with a no-op because the console shares the UART.
var Logf = log.Printf

// Banner lines written by Boot.
const (
	BannerID    = "HW_ID:"
	BannerReady = "Ready"
	Started     = "Measurement Started"
)

// Engine couples the line framing, the ingestor and the run controllers.
// It is not safe for concurrent use; Serve runs it from one goroutine.
type Engine struct {
	cfg   *config.Config
	out   io.Writer
	bench bench.Bench
	opts  control.Options

	lines   *protocol.LineBuffer
	ingest  *protocol.Ingestor
	runner  control.Runner
	pending *protocol.RunConfig
	active  protocol.RunConfig
}

// New creates an engine writing to out and driving b.
func New(cfg *config.Config, b bench.Bench, out io.Writer) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Engine{
		cfg:    cfg,
		out:    out,
		bench:  b,
		opts:   control.OptionsFrom(cfg),
		lines:  protocol.NewLineBuffer(cfg.Protocol.LineCapacity),
		ingest: protocol.NewIngestor(out, protocol.DefaultsFrom(cfg)),
	}
}

// Boot drives the bench to its safe state and writes the banner the host
// waits for.
func (e *Engine) Boot() error {
	if err := bench.Safe(e.bench); err != nil {
		return fmt.Errorf("failed to reset outputs: %w", err)
	}
	fmt.Fprintf(e.out, "%s%d\n%s\n", BannerID, e.cfg.Board.ID, BannerReady)
	return nil
}

// Busy reports whether a run is active or about to start.
func (e *Engine) Busy() bool {
	return e.pending != nil || e.runner.Busy()
}

// Active returns the configuration of the run in progress.
func (e *Engine) Active() (protocol.RunConfig, bool) {
	return e.active, e.runner.Busy()
}

// Feed consumes received bytes. Complete lines are ingested immediately,
// also while a run is executing; a run that becomes ready starts on the next
// Poll.
func (e *Engine) Feed(p []byte) {
	e.lines.Write(p, e.line)
}

func (e *Engine) line(line string, err error) {
	if err != nil {
		var pe *protocol.Error
		if errors.As(err, &pe) {
			fmt.Fprintln(e.out, pe.Line())
		}
		return
	}
	cfg, ok, _ := e.ingest.Feed(line, e.Busy())
	if ok {
		e.pending = &cfg
	}
}

// Next returns when Poll next has work to do. ok is false while idle.
func (e *Engine) Next(now time.Time) (next time.Time, ok bool) {
	switch {
	case e.pending != nil:
		return now, true
	case e.runner.Busy():
		return e.runner.Next(), true
	}
	return time.Time{}, false
}

// Poll starts a pending run and advances the active one. When a run ends,
// normally or with an error, the outputs are returned to the safe state.
func (e *Engine) Poll(now time.Time) {
	if e.pending != nil {
		cfg := *e.pending
		e.pending = nil
		e.start(cfg, now)
	}

	finished, err := e.runner.Poll(now)
	if !finished {
		return
	}
	if err != nil {
		e.abort(err)
		return
	}
	Logf("engine: run %d (%s) finished", e.active.Run, e.active.Mode)
	e.safe()
}

func (e *Engine) start(cfg protocol.RunConfig, now time.Time) {
	ctrl, err := control.New(e.bench, e.out, cfg, e.opts)
	if err != nil {
		e.abort(err)
		return
	}
	e.active = cfg
	fmt.Fprintln(e.out, Started)
	if err := e.runner.Start(ctrl, now); err != nil {
		e.abort(err)
		return
	}
	Logf("engine: run %d (%s) started", cfg.Run, cfg.Mode)
}

// Abort stops the active run, discards any partial configuration and
// returns the outputs to the safe state. It models an external reset.
func (e *Engine) Abort() {
	e.runner.Stop()
	e.pending = nil
	e.ingest.Reset()
	e.lines.Reset()
	e.safe()
}

func (e *Engine) abort(err error) {
	e.runner.Stop()
	fmt.Fprintln(e.out, protocol.Diagnostic(protocol.ErrRunAborted, err.Error()).Line())
	Logf("engine: run %d aborted: %v", e.active.Run, err)
	e.safe()
}

func (e *Engine) safe() {
	if err := bench.Safe(e.bench); err != nil {
		Logf("engine: failed to reset outputs: %v", err)
	}
}

// Serve runs the engine against r until ctx is cancelled or r fails. Reading
// happens on a separate goroutine; all engine state is touched only by the
// calling goroutine. On return the outputs are in the safe state. A clean
// end of input returns nil.
func (e *Engine) Serve(ctx context.Context, r io.Reader) error {
	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	defer e.Abort()
	for {
		now := time.Now()
		e.Poll(now)

		var wake <-chan time.Time
		if next, ok := e.Next(now); ok {
			wake = time.After(next.Sub(now))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-chunks:
			if !ok {
				select {
				case err := <-readErr:
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				default:
					return ctx.Err()
				}
			}
			e.Feed(p)
		case <-wake:
		}
	}
}
