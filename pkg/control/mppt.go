package control

import (
	"fmt"
	"io"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/protocol"
)

type mpptPhase uint8

const (
	phaseApply mpptPhase = iota
	phaseSample
)

// tracker is the perturb-and-observe state of one channel.
type tracker struct {
	biasV     float64
	direction float64 // +1 or -1
	power     float64 // smoothed power of the previous iteration, mW
	first     bool
}

// observe folds a new power reading into the smoothed power, reverses the
// direction if the power did not increase, and advances the bias by one step.
func (t *tracker) observe(powerMW float64, window int, stepV float64) {
	smoothed := (t.power*float64(window-1) + powerMW) / float64(window)
	if !t.first && smoothed <= t.power {
		t.direction = -t.direction
	}
	t.first = false
	t.power = smoothed
	t.biasV += t.direction * stepV
}

// MPPT tracks the maximum power point of every channel independently. Each
// iteration applies every channel's bias, waits the settle delay, then
// samples the channels one after another. A channel's sampling stops after
// ReadsPerStep attempts or when its sampling budget elapses. Samples outside
// the plausibility envelope are dropped.
type MPPT struct {
	bench  bench.Bench
	out    io.Writer
	rows   *rowWriter
	params protocol.MPPTParams
	env    config.Envelope
	run    int

	start    time.Time
	phase    mpptPhase
	ch       int
	attempts int
	window   time.Time // start of the current channel's sampling
	tracks   []tracker
	acc      []Accumulator
}

// NewMPPT creates a tracker run.
func NewMPPT(b bench.Bench, out io.Writer, run int, p protocol.MPPTParams, env config.Envelope) *MPPT {
	if out == nil {
		out = io.Discard
	}
	if p.Smoothing < 1 {
		p.Smoothing = 1
	}
	return &MPPT{
		bench:  b,
		out:    out,
		rows:   newRowWriter(out, b.Channels()),
		params: p,
		env:    env,
		run:    run,
		tracks: make([]tracker, b.Channels()),
		acc:    make([]Accumulator, b.Channels()),
	}
}

// Bias returns the bias channel ch will be driven to next.
func (m *MPPT) Bias(ch int) float64 {
	return m.tracks[ch].biasV
}

// Direction returns the perturbation direction of channel ch, +1 or -1.
func (m *MPPT) Direction(ch int) float64 {
	return m.tracks[ch].direction
}

func (m *MPPT) Start(now time.Time) (time.Duration, error) {
	m.start = now
	m.phase = phaseApply
	for ch := range m.tracks {
		m.tracks[ch] = tracker{
			biasV:     m.params.InitialBiasV[ch],
			direction: 1,
			first:     true,
		}
		m.acc[ch] = Accumulator{}
	}

	fmt.Fprintf(m.out, "measurement time (min): %v\n", m.params.DurationMin)
	if err := m.bench.Illumination(m.params.Illumination); err != nil {
		return 0, err
	}
	if err := m.bench.Indicator(true); err != nil {
		return 0, err
	}
	return 0, nil
}

func (m *MPPT) Step(now time.Time) (time.Duration, bool, error) {
	if m.phase == phaseApply {
		return m.apply(now)
	}

	r, err := m.bench.Read(m.ch)
	if err != nil {
		return 0, false, fmt.Errorf("read channel %d: %w", m.ch, err)
	}
	m.attempts++
	if Plausible(m.env, r) {
		m.acc[m.ch].Add(r)
	}

	budget := m.params.SampleInterval > 0 && now.Sub(m.window) >= m.params.SampleInterval
	if m.attempts < m.params.ReadsPerStep && !budget {
		return 0, false, nil
	}

	m.ch++
	m.attempts = 0
	m.window = now
	if m.ch < len(m.tracks) {
		return 0, false, nil
	}
	return 0, false, m.finish(now)
}

// apply starts an iteration, or ends the run once the duration has elapsed.
func (m *MPPT) apply(now time.Time) (time.Duration, bool, error) {
	if now.Sub(m.start) >= m.params.Duration() {
		fmt.Fprintln(m.out, MPPTComplete)
		return 0, true, nil
	}
	for ch := range m.tracks {
		if err := m.bench.Write(ch, m.tracks[ch].biasV); err != nil {
			return 0, false, err
		}
	}
	m.phase = phaseSample
	m.ch = 0
	m.attempts = 0
	m.window = now.Add(m.params.SettleDelay)
	return m.params.SettleDelay, false, nil
}

// finish closes an iteration: emit the row, then update every tracker.
func (m *MPPT) finish(now time.Time) error {
	m.rows.begin(now.Sub(m.start))
	m.rows.channels(m.acc)
	if err := m.rows.end(m.run); err != nil {
		return err
	}
	for ch := range m.tracks {
		v, i := m.acc[ch].Average()
		m.tracks[ch].observe(v*i, m.params.Smoothing, m.params.StepV)
		m.acc[ch].Reset()
	}
	m.phase = phaseApply
	return nil
}
