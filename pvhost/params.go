package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/protocol"
)

// runFlags holds the per-mode parameters given on the command line.
type runFlags struct {
	mode string

	// scan
	rangeV   float64
	stepV    float64
	reads    int
	rateMVs  float64
	backward bool
	dark     bool

	// mppt
	biases    string
	duration  float64
	settle    time.Duration
	interval  time.Duration
	smoothing int

	// constantVoltage
	holdV       float64
	rowInterval time.Duration
	holdFor     time.Duration
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.mode, "mode", protocol.KeyScan, "Run mode: scan, mppt or constantVoltage")

	fs.Float64Var(&f.rangeV, "range", 1.2, "Scan: sweep range (V)")
	fs.Float64Var(&f.stepV, "step", 0.01, "Scan/MPPT: bias step (V)")
	fs.IntVar(&f.reads, "reads", 5, "Reads per step")
	fs.Float64Var(&f.rateMVs, "rate", 100, "Scan: sweep rate (mV/s)")
	fs.BoolVar(&f.backward, "backward", false, "Scan: sweep from the range down to 0 V")
	fs.BoolVar(&f.dark, "dark", false, "Keep illumination off")

	fs.StringVar(&f.biases, "bias", "0.8", "MPPT: comma-separated initial bias per channel (V); a single value applies to all")
	fs.Float64Var(&f.duration, "duration", 1, "MPPT: tracking time (min)")
	fs.DurationVar(&f.settle, "settle", 200*time.Millisecond, "MPPT: settle delay after each perturbation")
	fs.DurationVar(&f.interval, "interval", 0, "MPPT: per-channel sampling budget (0 = unbounded)")
	fs.IntVar(&f.smoothing, "smoothing", 0, "MPPT: power moving-average window (0 = board default)")

	fs.Float64Var(&f.holdV, "hold", 0.5, "ConstantVoltage: bias (V)")
	fs.DurationVar(&f.rowInterval, "row-interval", 0, "ConstantVoltage: time between rows (0 = board default)")
	fs.DurationVar(&f.holdFor, "hold-for", 0, "ConstantVoltage: stop after this long (0 = until interrupted)")
}

// lines renders the flags as protocol lines, mode key first and done last.
func (f *runFlags) lines(channels int) ([]string, error) {
	mode, ok := protocol.ParseMode(f.mode)
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", f.mode)
	}
	illumination := "1"
	if f.dark {
		illumination = "0"
	}

	lines := []string{mode.String()}
	switch mode {
	case protocol.ModeScan:
		direction := "0"
		if f.backward {
			direction = "1"
		}
		lines = append(lines,
			"1,"+formatFloat(f.rangeV),
			"2,"+formatFloat(f.stepV),
			"3,"+strconv.Itoa(f.reads),
			"4,"+formatFloat(f.rateMVs),
			"5,"+direction,
			"6,"+illumination,
		)
	case protocol.ModeMPPT:
		biases, err := expandBiases(f.biases, channels)
		if err != nil {
			return nil, err
		}
		lines = append(lines,
			"1,"+strings.Join(biases, ","),
			"2,"+formatFloat(f.stepV),
			"3,"+formatFloat(f.duration),
			"4,"+strconv.Itoa(f.reads),
			"5,"+formatMs(f.settle),
			"6,"+formatMs(f.interval),
		)
		if f.smoothing > 0 {
			lines = append(lines, "7,"+strconv.Itoa(f.smoothing))
		}
		lines = append(lines, "8,"+illumination)
	case protocol.ModeConstantVoltage:
		lines = append(lines,
			"1,"+formatFloat(f.holdV),
			"2,"+strconv.Itoa(f.reads),
		)
		if f.rowInterval > 0 {
			lines = append(lines, "3,"+formatMs(f.rowInterval))
		}
		lines = append(lines, "4,"+illumination)
	}
	return append(lines, protocol.KeyDone), nil
}

// expandBiases returns one bias token per protocol channel. A single value
// is repeated over the populated channels; unpopulated channels get 0.
func expandBiases(s string, channels int) ([]string, error) {
	var tokens []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New("no MPPT bias given")
	}
	if len(tokens) > protocol.Channels {
		return nil, fmt.Errorf("%d MPPT biases given, at most %d channels", len(tokens), protocol.Channels)
	}
	if len(tokens) == 1 {
		for len(tokens) < channels {
			tokens = append(tokens, tokens[0])
		}
	}
	for len(tokens) < protocol.Channels {
		tokens = append(tokens, "0")
	}
	return tokens, nil
}

// parseRun validates lines the way the board does and returns the resulting
// run configuration. Board diagnostics are included in the error.
func parseRun(cfg *config.Config, lines []string) (protocol.RunConfig, error) {
	var diag bytes.Buffer
	in := protocol.NewIngestor(&diag, protocol.DefaultsFrom(cfg))
	var firstErr error
	for _, line := range lines {
		run, ok, err := in.Feed(line, false)
		var perr *protocol.Error
		if err != nil && firstErr == nil && !(errors.As(err, &perr) && perr.Warning) {
			firstErr = err
		}
		if ok {
			if firstErr != nil {
				break
			}
			return run, nil
		}
	}
	if firstErr == nil {
		firstErr = errors.New("no done line")
	}
	return protocol.RunConfig{}, fmt.Errorf("invalid run parameters: %w\n%s", firstErr, strings.TrimSpace(diag.String()))
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatMs(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }
