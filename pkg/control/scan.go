package control

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/mathx"
	"github.com/itohio/pvstab/pkg/protocol"
)

// stepEpsilon absorbs float error when counting steps, so that 0.3/0.1 is
// three steps and not two.
const stepEpsilon = 1e-9

// Scan sweeps every channel synchronously across [0, RangeV] in StepV
// increments, averaging ReadsPerStep samples per step and emitting one row
// per step. Samples are not filtered.
type Scan struct {
	bench  bench.Bench
	out    io.Writer
	rows   *rowWriter
	params protocol.ScanParams
	run    int

	delay time.Duration
	steps int // last step index; steps+1 rows are emitted

	start   time.Time
	k       int
	samples int
	acc     []Accumulator
}

// NewScan creates a sweep. overhead is the time a full read of every
// channel takes; it is subtracted from the per-sample delay.
func NewScan(b bench.Bench, out io.Writer, run int, p protocol.ScanParams, overhead time.Duration) *Scan {
	if out == nil {
		out = io.Discard
	}
	s := &Scan{
		bench:  b,
		out:    out,
		rows:   newRowWriter(out, b.Channels()),
		params: p,
		run:    run,
		acc:    make([]Accumulator, b.Channels()),
	}
	s.steps = StepCount(p.RangeV, p.StepV)
	s.delay = ScanDelay(p, overhead)
	return s
}

// StepCount returns floor(rangeV/stepV), the index of the last sweep step.
func StepCount(rangeV, stepV float64) int {
	if stepV <= 0 || rangeV <= 0 {
		return 0
	}
	return int(math.Floor(rangeV/stepV + stepEpsilon))
}

// ScanDelay returns the wait after each sample so the sweep approximates
// the requested rate: the sweep time spread over every sample of every
// step, less the measurement overhead, never negative.
func ScanDelay(p protocol.ScanParams, overhead time.Duration) time.Duration {
	if p.RateMVs <= 0 {
		return 0
	}
	total := p.RangeV * 1000 / p.RateMVs * float64(time.Second)
	steps := max(StepCount(p.RangeV, p.StepV), 1)
	reads := max(p.ReadsPerStep, 1)
	perSample := time.Duration(total / float64(steps) / float64(reads))
	return mathx.NonNegative(perSample - overhead)
}

// Delay returns the per-sample wait in effect.
func (s *Scan) Delay() time.Duration {
	return s.delay
}

// Bias returns the commanded bias of step k.
func (s *Scan) Bias(k int) float64 {
	v := float64(k) * s.params.StepV
	if s.params.Direction == protocol.Backward {
		return mathx.NonNegative(s.params.RangeV - v)
	}
	return v
}

func (s *Scan) Start(now time.Time) (time.Duration, error) {
	s.start = now
	s.k = 0
	s.samples = 0
	for i := range s.acc {
		s.acc[i] = Accumulator{}
	}

	fmt.Fprintf(s.out, "scan delay (ms): %d\n", s.delay.Milliseconds())
	if err := s.bench.Illumination(s.params.Illumination); err != nil {
		return 0, err
	}
	if err := s.bench.Indicator(true); err != nil {
		return 0, err
	}
	if err := bench.WriteAll(s.bench, s.Bias(0)); err != nil {
		return 0, err
	}
	return s.delay, nil
}

func (s *Scan) Step(now time.Time) (time.Duration, bool, error) {
	for ch := range s.acc {
		r, err := s.bench.Read(ch)
		if err != nil {
			return 0, false, fmt.Errorf("read channel %d: %w", ch, err)
		}
		s.acc[ch].Add(r)
	}
	s.samples++
	if s.samples < s.params.ReadsPerStep {
		return s.delay, false, nil
	}

	s.rows.begin(now.Sub(s.start))
	s.rows.float(s.Bias(s.k))
	s.rows.channels(s.acc)
	if err := s.rows.end(s.run); err != nil {
		return 0, false, err
	}
	for i := range s.acc {
		s.acc[i].Reset()
	}
	s.samples = 0
	s.k++

	if s.k > s.steps {
		s.complete(now)
		return 0, true, nil
	}
	if err := bench.WriteAll(s.bench, s.Bias(s.k)); err != nil {
		return 0, false, err
	}
	return s.delay, false, nil
}

// complete reports the achieved sweep rate.
func (s *Scan) complete(now time.Time) {
	var rate float64
	if elapsed := now.Sub(s.start).Seconds(); elapsed > 0 {
		rate = float64(s.steps) * s.params.StepV * 1000 / elapsed
	}
	fmt.Fprintf(s.out, "%s: realized rate %.2f mV/s (requested %.2f mV/s)\n", ScanComplete, rate, s.params.RateMVs)
}
