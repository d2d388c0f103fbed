package control

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/protocol"
)

// parabolic gives a power curve P = V*(10-5V) with its maximum at 1 V.
func parabolic(_ int, v float64) float64 {
	return 10 - 5*v
}

func mpptParams(channels int) protocol.MPPTParams {
	p := protocol.MPPTParams{
		StepV:        0.05,
		DurationMin:  1,
		ReadsPerStep: 3,
		SettleDelay:  100 * time.Millisecond,
		Smoothing:    1,
		Illumination: true,
	}
	for ch := 0; ch < channels; ch++ {
		p.InitialBiasV[ch] = 0.5
	}
	return p
}

func TestTracker_Observe(t *testing.T) {
	tr := tracker{biasV: 0.5, direction: 1, first: true}

	tr.observe(1, 1, 0.1)
	assert.Equal(t, 1.0, tr.direction, "first iteration keeps the direction")
	assert.InDelta(t, 0.6, tr.biasV, 1e-12)

	tr.observe(2, 1, 0.1)
	assert.Equal(t, 1.0, tr.direction, "power increased")
	assert.InDelta(t, 0.7, tr.biasV, 1e-12)

	tr.observe(2, 1, 0.1)
	assert.Equal(t, -1.0, tr.direction, "equal power reverses")
	assert.InDelta(t, 0.6, tr.biasV, 1e-12)

	tr.observe(1, 1, 0.1)
	assert.Equal(t, 1.0, tr.direction, "lower power reverses")
	assert.InDelta(t, 0.7, tr.biasV, 1e-12)
}

func TestTracker_Smoothing(t *testing.T) {
	tr := tracker{direction: 1, first: true}
	tr.observe(10, 5, 0.1)
	assert.InDelta(t, 2.0, tr.power, 1e-12)
	tr.observe(10, 5, 0.1)
	assert.InDelta(t, 3.6, tr.power, 1e-12)
	assert.Equal(t, 1.0, tr.direction)

	// A single dip is absorbed until the smoothed value stops rising.
	tr.observe(4, 5, 0.1)
	assert.InDelta(t, 3.68, tr.power, 1e-12)
	assert.Equal(t, 1.0, tr.direction)
	tr.observe(0, 5, 0.1)
	assert.Equal(t, -1.0, tr.direction)
}

func TestMPPT_Converges(t *testing.T) {
	b := newFakeBench(2, parabolic)
	var out bytes.Buffer
	m := NewMPPT(b, &out, 3, mpptParams(2), config.Default().MPPT.Plausibility)

	clk := NewFakeClock(epoch)
	var r Runner
	require.NoError(t, r.Start(m, clk.Now()))
	assert.True(t, b.light)
	assert.True(t, b.led)

	prev := []float64{m.Bias(0), m.Bias(1)}
	iterations := 0
	for r.Busy() {
		clk.Set(r.Next())
		_, err := r.Poll(clk.Now())
		require.NoError(t, err)
		if m.Bias(0) == prev[0] {
			continue
		}
		iterations++
		for ch := range prev {
			assert.InDelta(t, 0.05, math.Abs(m.Bias(ch)-prev[ch]), 1e-9, "iteration %d", iterations)
			prev[ch] = m.Bias(ch)
		}
	}
	require.Greater(t, iterations, 50)
	assert.InDelta(t, 1.0, m.Bias(0), 0.11)
	assert.InDelta(t, 1.0, m.Bias(1), 0.11)
	assert.Contains(t, out.String(), "measurement time (min): 1\n")
	assert.Contains(t, out.String(), "mppt complete\n")

	rows := dataRows(t, out.String())
	require.Len(t, rows, iterations)
	for _, row := range rows {
		require.Len(t, row, 1+2*2+1)
		assert.Equal(t, 3.0, row[len(row)-1])
		assert.LessOrEqual(t, row[0], 60.0)
	}
}

func TestMPPT_DirectionFlipsIffPowerDrops(t *testing.T) {
	b := newFakeBench(1, parabolic)
	p := mpptParams(1)
	p.Smoothing = 3
	m := NewMPPT(b, nil, 1, p, config.Default().MPPT.Plausibility)

	clk := NewFakeClock(epoch)
	var r Runner
	require.NoError(t, r.Start(m, clk.Now()))

	lastPower := 0.0
	lastDir := 1.0
	lastBias := m.Bias(0)
	iteration := 0
	for r.Busy() {
		clk.Set(r.Next())
		_, err := r.Poll(clk.Now())
		require.NoError(t, err)
		if m.Bias(0) == lastBias {
			continue
		}
		power := m.tracks[0].power
		flipped := m.Direction(0) != lastDir
		if iteration > 0 {
			assert.Equal(t, power <= lastPower, flipped, "iteration %d", iteration)
		}
		iteration++
		assert.InDelta(t, 0.05, math.Abs(m.Bias(0)-lastBias), 1e-9)
		lastPower, lastDir, lastBias = power, m.Direction(0), m.Bias(0)
	}
}

func TestMPPT_FiltersImplausible(t *testing.T) {
	b := newFakeBench(1, constantCurrent(2))
	b.tamper = func(_, read int, r bench.Reading) bench.Reading {
		if read%2 == 0 {
			r.BiasV = 3.0
		}
		return r
	}
	p := mpptParams(1)
	p.ReadsPerStep = 4
	p.DurationMin = 0.001
	var out bytes.Buffer
	m := NewMPPT(b, &out, 1, p, config.Default().MPPT.Plausibility)

	clk := NewFakeClock(epoch)
	var r Runner
	require.NoError(t, r.Start(m, clk.Now()))
	_, err := drive(t, &r, clk, 100)
	require.NoError(t, err)

	rows := dataRows(t, out.String())
	require.Len(t, rows, 1)
	assert.Equal(t, 0.5, rows[0][1], "glitched samples excluded")
	assert.Equal(t, 2.0, rows[0][2])
	assert.Equal(t, []int{4}, b.reads)
}

func TestMPPT_NoValidSamplesHoldsAverage(t *testing.T) {
	b := newFakeBench(1, constantCurrent(2))
	b.tamper = func(_, read int, r bench.Reading) bench.Reading {
		if read > 3 {
			r.CurrentMA = 100
		}
		return r
	}
	p := mpptParams(1)
	p.DurationMin = 0.005
	var out bytes.Buffer
	m := NewMPPT(b, &out, 1, p, config.Default().MPPT.Plausibility)

	clk := NewFakeClock(epoch)
	var r Runner
	require.NoError(t, r.Start(m, clk.Now()))
	_, err := drive(t, &r, clk, 100)
	require.NoError(t, err)

	rows := dataRows(t, out.String())
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, 0.5, row[1])
		assert.Equal(t, 2.0, row[2])
	}
	// Held power never rises, so the direction reverses every iteration
	// after the first: 0.5 -> 0.55 -> 0.5 -> 0.55.
	assert.InDelta(t, 0.55, m.Bias(0), 1e-9)
}

func TestMPPT_SamplingBudget(t *testing.T) {
	clk := NewFakeClock(epoch)
	b := newFakeBench(1, constantCurrent(2))
	b.onRead = func() { clk.Advance(10 * time.Millisecond) }

	p := mpptParams(1)
	p.ReadsPerStep = 10
	p.SettleDelay = 0
	p.SampleInterval = 25 * time.Millisecond
	p.DurationMin = 0.0001
	m := NewMPPT(b, nil, 1, p, config.Default().MPPT.Plausibility)

	var r Runner
	require.NoError(t, r.Start(m, clk.Now()))
	_, err := drive(t, &r, clk, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, b.reads)
}

func TestMPPT_ZeroDuration(t *testing.T) {
	b := newFakeBench(2, parabolic)
	p := mpptParams(2)
	p.DurationMin = 0
	var out bytes.Buffer
	m := NewMPPT(b, &out, 1, p, config.Default().MPPT.Plausibility)

	clk := NewFakeClock(epoch)
	var r Runner
	require.NoError(t, r.Start(m, clk.Now()))
	_, err := drive(t, &r, clk, 10)
	require.NoError(t, err)

	assert.Empty(t, dataRows(t, out.String()))
	assert.Equal(t, "measurement time (min): 0\nmppt complete\n", out.String())
}
