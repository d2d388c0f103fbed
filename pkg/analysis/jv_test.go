package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/link"
	"github.com/itohio/pvstab/pkg/protocol"
)

// unitCell makes output power in mW equal to PCE in percent.
var unitCell = Cell{AreaMM2: 100, IrradianceMWcm2: 100}

var (
	curveV = []float64{0, 0.5, 1.0, 1.5}
	curveI = []float64{10, 8, 4, -2}
)

func TestJV(t *testing.T) {
	s, err := JV(curveV, curveI, unitCell)
	require.NoError(t, err)

	assert.InDelta(t, 1.3333, s.Voc, 1e-4)
	assert.InDelta(t, 10, s.IscMA, 1e-9)
	assert.InDelta(t, 10, s.Jsc, 1e-9)
	assert.Equal(t, 0.5, s.Vmp)
	assert.Equal(t, 8.0, s.ImpMA)
	assert.InDelta(t, 4, s.PmaxMW, 1e-9)
	assert.InDelta(t, 0.3, s.FF, 1e-9)
	assert.InDelta(t, 4, s.PCE, 1e-9)
}

func TestJV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		v, i    []float64
		wantErr error
	}{
		{"length mismatch", []float64{0, 1}, []float64{1}, ErrLength},
		{"empty", nil, nil, ErrTooFewPoints},
		{"constant current", []float64{0, 1, 2}, []float64{3, 3, 3}, ErrTooFewPoints},
		{"all NaN", []float64{math.NaN(), math.NaN()}, []float64{1, 2}, ErrTooFewPoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JV(tt.v, tt.i, unitCell)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJV_Extrapolates(t *testing.T) {
	// current never crosses zero: Voc clamps to the end of the sweep
	s, err := JV([]float64{0.1, 0.2}, []float64{5, 4}, unitCell)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, s.Voc, 1e-9)
	assert.InDelta(t, 5, s.IscMA, 1e-9)
}

func TestCell(t *testing.T) {
	c := CellFrom(config.Default())
	assert.Equal(t, 12.8, c.AreaMM2)
	assert.Equal(t, 100.0, c.IrradianceMWcm2)
	assert.InDelta(t, 0.128, c.AreaCM2(), 1e-12)
	// 1.28 mW over 0.128 cm² at 100 mW/cm² is 10%
	assert.InDelta(t, 10, c.PCE(1.28), 1e-9)

	assert.Zero(t, Cell{}.PCE(5))
	assert.Zero(t, Cell{}.CurrentDensity(5))
}

func jvRows(scale ...float64) []link.Row {
	rows := make([]link.Row, len(curveV))
	for k := range curveV {
		r := link.Row{Elapsed: float64(k), BiasV: curveV[k], HasBias: true, Run: 1}
		for _, s := range scale {
			r.VoltageV = append(r.VoltageV, curveV[k])
			r.CurrentMA = append(r.CurrentMA, curveI[k]*s)
		}
		rows[k] = r
	}
	return rows
}

func TestScanStats(t *testing.T) {
	stats := ScanStats(jvRows(1, 2), unitCell)
	require.Len(t, stats, 2)

	for ch, want := range []float64{4, 8} {
		require.NoError(t, stats[ch].Err)
		assert.Equal(t, ch, stats[ch].Channel)
		assert.InDelta(t, 1.3333, stats[ch].Voc, 1e-4)
		assert.InDelta(t, want, stats[ch].PmaxMW, 1e-9)
		assert.InDelta(t, 0.3, stats[ch].FF, 1e-9)
	}

	assert.Nil(t, ScanStats(nil, unitCell))
}

func TestSweepDirection(t *testing.T) {
	forward := jvRows(1)
	assert.Equal(t, protocol.Forward, SweepDirection(forward))

	backward := jvRows(1)
	for k := range backward {
		backward[k].BiasV = 1.5 - backward[k].BiasV
	}
	assert.Equal(t, protocol.Backward, SweepDirection(backward))

	noBias := jvRows(1)
	for k := range noBias {
		noBias[k].HasBias = false
	}
	assert.Equal(t, protocol.Forward, SweepDirection(noBias))
}
