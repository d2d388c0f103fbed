package control

import (
	"fmt"
	"io"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/protocol"
)

// Hold keeps every channel at a fixed bias and emits an averaged row every
// RowInterval. It never finishes on its own.
type Hold struct {
	bench  bench.Bench
	rows   *rowWriter
	params protocol.HoldParams
	run    int

	start   time.Time
	samples int
	acc     []Accumulator
}

// NewHold creates a constant-voltage run.
func NewHold(b bench.Bench, out io.Writer, run int, p protocol.HoldParams) *Hold {
	return &Hold{
		bench:  b,
		rows:   newRowWriter(out, b.Channels()),
		params: p,
		run:    run,
		acc:    make([]Accumulator, b.Channels()),
	}
}

func (h *Hold) Start(now time.Time) (time.Duration, error) {
	h.start = now
	h.samples = 0
	for i := range h.acc {
		h.acc[i] = Accumulator{}
	}
	if err := h.bench.Illumination(h.params.Illumination); err != nil {
		return 0, err
	}
	if err := h.bench.Indicator(true); err != nil {
		return 0, err
	}
	return 0, bench.WriteAll(h.bench, h.params.BiasV)
}

func (h *Hold) Step(now time.Time) (time.Duration, bool, error) {
	for ch := range h.acc {
		r, err := h.bench.Read(ch)
		if err != nil {
			return 0, false, fmt.Errorf("read channel %d: %w", ch, err)
		}
		h.acc[ch].Add(r)
	}
	h.samples++
	if h.samples < h.params.ReadsPerStep {
		return 0, false, nil
	}

	h.rows.begin(now.Sub(h.start))
	h.rows.float(h.params.BiasV)
	h.rows.channels(h.acc)
	if err := h.rows.end(h.run); err != nil {
		return 0, false, err
	}
	for i := range h.acc {
		h.acc[i].Reset()
	}
	h.samples = 0
	return h.params.RowInterval, false, nil
}
