// Package protocol implements the host-to-board run configuration protocol:
// line framing, the per-mode field schema, the ingestor state machine that
// turns lines into a validated RunConfig, and the host-side encoder.
package protocol

import (
	"time"

	"github.com/itohio/pvstab/pkg/config"
)

// Channels is the width of every per-channel array.
const Channels = config.MaxChannels

// Mode selects the experiment a RunConfig parameterizes.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeScan
	ModeMPPT
	ModeConstantVoltage
)

// Mode keys as sent on the wire.
const (
	KeyScan            = "scan"
	KeyMPPT            = "mppt"
	KeyConstantVoltage = "constantVoltage"
	KeyDone            = "done"
)

func (m Mode) String() string {
	switch m {
	case ModeScan:
		return KeyScan
	case ModeMPPT:
		return KeyMPPT
	case ModeConstantVoltage:
		return KeyConstantVoltage
	}
	return "none"
}

// ParseMode maps a mode key to its Mode. Matching is exact and case-sensitive.
func ParseMode(key string) (Mode, bool) {
	switch key {
	case KeyScan:
		return ModeScan, true
	case KeyMPPT:
		return ModeMPPT, true
	case KeyConstantVoltage:
		return ModeConstantVoltage, true
	}
	return ModeNone, false
}

// Direction is the sweep direction of a scan.
type Direction uint8

const (
	Forward  Direction = iota // 0 V up to the range
	Backward                  // range down to 0 V
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// ScanParams parameterizes a linear voltage sweep.
type ScanParams struct {
	RangeV       float64
	StepV        float64
	ReadsPerStep int
	RateMVs      float64 // requested sweep rate, mV/s
	Direction    Direction
	Illumination bool
}

// MPPTParams parameterizes the perturb-and-observe tracker.
type MPPTParams struct {
	InitialBiasV   [Channels]float64
	StepV          float64
	DurationMin    float64
	ReadsPerStep   int
	SettleDelay    time.Duration
	SampleInterval time.Duration // per-channel sampling budget, 0 = unbounded
	Smoothing      int
	Illumination   bool
}

// Duration returns the wall-clock length of the tracking run.
func (p MPPTParams) Duration() time.Duration {
	return time.Duration(p.DurationMin * float64(time.Minute))
}

// HoldParams parameterizes the constant-voltage hold.
type HoldParams struct {
	BiasV        float64
	ReadsPerStep int
	RowInterval  time.Duration
	Illumination bool
}

// RunConfig is the validated parameter set for one run. Only the params of
// the selected Mode are meaningful.
type RunConfig struct {
	Mode Mode
	Run  int // run number, echoed as the trailing field of every row

	Scan ScanParams
	MPPT MPPTParams
	Hold HoldParams
}

// Defaults are the board-side values used for optional fields.
type Defaults struct {
	Smoothing   int
	RowInterval time.Duration
}

// DefaultsFrom extracts the protocol defaults from a board configuration.
func DefaultsFrom(cfg *config.Config) Defaults {
	return Defaults{
		Smoothing:   cfg.MPPT.Smoothing,
		RowInterval: cfg.ConstantVoltage.RowInterval,
	}
}

// newDraft returns the starting point for a run of the given mode with all
// optional fields at their defaults.
func newDraft(mode Mode, d Defaults) RunConfig {
	smoothing := d.Smoothing
	if smoothing < 1 {
		smoothing = 1
	}
	return RunConfig{
		Mode: mode,
		Scan: ScanParams{
			Direction:    Forward,
			Illumination: true,
		},
		MPPT: MPPTParams{
			Smoothing:    smoothing,
			Illumination: true,
		},
		Hold: HoldParams{
			RowInterval:  d.RowInterval,
			Illumination: true,
		},
	}
}
