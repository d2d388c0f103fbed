package control

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/protocol"
)

// ErrMode is returned by New for a RunConfig without a runnable mode.
var ErrMode = errors.New("control: no controller for mode")

// Messages that close a finite run.
const (
	ScanComplete = "scan complete"
	MPPTComplete = "mppt complete"
)

// Controller is one experiment run expressed as a step function.
type Controller interface {
	// Start applies the initial outputs and returns the delay before the
	// first Step.
	Start(now time.Time) (time.Duration, error)
	// Step performs one unit of work. It returns the delay before the next
	// call, or done when the run has finished. An error aborts the run.
	Step(now time.Time) (wait time.Duration, done bool, err error)
}

// Options are the board-level parameters the controllers need beyond the
// RunConfig.
type Options struct {
	SampleOverhead time.Duration   // scan: time to read every channel once
	Plausibility   config.Envelope // mppt: accepted sample envelope
}

// OptionsFrom extracts controller options from a board configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		SampleOverhead: cfg.Scan.SampleOverhead,
		Plausibility:   cfg.MPPT.Plausibility,
	}
}

// New returns the controller for cfg.Mode. Rows and status lines are written
// to out.
func New(b bench.Bench, out io.Writer, cfg protocol.RunConfig, opts Options) (Controller, error) {
	switch cfg.Mode {
	case protocol.ModeScan:
		return NewScan(b, out, cfg.Run, cfg.Scan, opts.SampleOverhead), nil
	case protocol.ModeMPPT:
		return NewMPPT(b, out, cfg.Run, cfg.MPPT, opts.Plausibility), nil
	case protocol.ModeConstantVoltage:
		return NewHold(b, out, cfg.Run, cfg.Hold), nil
	}
	return nil, fmt.Errorf("%w %s", ErrMode, cfg.Mode)
}

// Runner owns the active controller and calls it when its requested delay
// has elapsed. At most one controller is active.
type Runner struct {
	ctrl Controller
	next time.Time
}

// Busy reports whether a run is active.
func (r *Runner) Busy() bool {
	return r.ctrl != nil
}

// Next returns when the active controller wants its next Step.
func (r *Runner) Next() time.Time {
	return r.next
}

// Start makes c the active controller. A failing Start leaves the runner
// idle.
func (r *Runner) Start(c Controller, now time.Time) error {
	if r.ctrl != nil {
		return protocol.ErrBusy
	}
	wait, err := c.Start(now)
	if err != nil {
		return err
	}
	r.ctrl = c
	r.next = now.Add(wait)
	return nil
}

// Poll steps the active controller if it is due. finished is true on the
// poll that ended the run, either normally or with err.
func (r *Runner) Poll(now time.Time) (finished bool, err error) {
	if r.ctrl == nil || now.Before(r.next) {
		return false, nil
	}
	wait, done, err := r.ctrl.Step(now)
	if done || err != nil {
		r.ctrl = nil
		return true, err
	}
	r.next = now.Add(wait)
	return false, nil
}

// Stop abandons the active run.
func (r *Runner) Stop() {
	r.ctrl = nil
}
