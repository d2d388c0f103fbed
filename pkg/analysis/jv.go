// Package analysis turns recorded rows into photovoltaic figures of merit:
// JV statistics of scans, efficiency summaries of MPPT runs, CSV recording
// and plots.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/itohio/pvstab/pkg/config"
)

var (
	ErrTooFewPoints = errors.New("analysis: too few distinct points")
	ErrLength       = errors.New("analysis: voltage and current lengths differ")
)

// Cell describes the illuminated device under test.
type Cell struct {
	AreaMM2         float64
	IrradianceMWcm2 float64
}

// CellFrom returns the cell parameters from the analysis configuration.
func CellFrom(cfg *config.Config) Cell {
	return Cell{
		AreaMM2:         cfg.Analysis.CellAreaMM2,
		IrradianceMWcm2: cfg.Analysis.IrradianceMWcm2,
	}
}

// AreaCM2 returns the cell area in square centimetres.
func (c Cell) AreaCM2() float64 {
	return c.AreaMM2 / 100
}

// PCE returns the power conversion efficiency in percent for an output
// power in mW. Zero is returned when the incident power is unknown.
func (c Cell) PCE(powerMW float64) float64 {
	incident := c.IrradianceMWcm2 * c.AreaCM2()
	if incident <= 0 {
		return 0
	}
	return powerMW / incident * 100
}

// CurrentDensity converts a current in mA to mA/cm².
func (c Cell) CurrentDensity(currentMA float64) float64 {
	area := c.AreaCM2()
	if area <= 0 {
		return 0
	}
	return currentMA / area
}

// JVStats are the figures of merit of one JV curve.
type JVStats struct {
	Voc    float64 // V at I=0
	IscMA  float64 // I at V=0
	Jsc    float64 // mA/cm²
	Vmp    float64
	ImpMA  float64
	PmaxMW float64
	FF     float64 // fill factor, 0..1
	PCE    float64 // percent
}

// JV computes the statistics of a curve given as measured voltages and
// photocurrents. Voc and Isc are linearly interpolated, the maximum power
// point is the sample with the largest V*I.
func JV(v, i []float64, cell Cell) (JVStats, error) {
	if len(v) != len(i) {
		return JVStats{}, fmt.Errorf("%w: %d vs %d", ErrLength, len(v), len(i))
	}

	voc, err := interpolateAt(i, v, 0)
	if err != nil {
		return JVStats{}, fmt.Errorf("failed to interpolate Voc: %w", err)
	}
	isc, err := interpolateAt(v, i, 0)
	if err != nil {
		return JVStats{}, fmt.Errorf("failed to interpolate Isc: %w", err)
	}

	power := make([]float64, len(v))
	floats.MulTo(power, v, i)
	for k, p := range power {
		if math.IsNaN(p) {
			power[k] = math.Inf(-1)
		}
	}
	mp := floats.MaxIdx(power)

	s := JVStats{
		Voc:    voc,
		IscMA:  isc,
		Jsc:    cell.CurrentDensity(isc),
		Vmp:    v[mp],
		ImpMA:  i[mp],
		PmaxMW: power[mp],
		PCE:    cell.PCE(power[mp]),
	}
	if d := voc * isc; d != 0 {
		s.FF = s.PmaxMW / d
	}
	return s, nil
}

// interpolateAt fits ys over xs piecewise linearly and evaluates it at x.
// Points are sorted by x; repeated x values keep the first sample. Outside
// the sampled range the nearest end value is returned.
func interpolateAt(xs, ys []float64, x float64) (float64, error) {
	sorted := make([]float64, 0, len(xs))
	keep := make([]int, 0, len(xs))
	for k, v := range xs {
		if math.IsNaN(v) || math.IsNaN(ys[k]) {
			continue
		}
		sorted = append(sorted, v)
		keep = append(keep, k)
	}
	inds := make([]int, len(sorted))
	floats.ArgsortStable(sorted, inds)

	px := make([]float64, 0, len(sorted))
	py := make([]float64, 0, len(sorted))
	for k, idx := range inds {
		if k > 0 && sorted[k] == px[len(px)-1] {
			continue
		}
		px = append(px, sorted[k])
		py = append(py, ys[keep[idx]])
	}
	if len(px) < 2 {
		return 0, ErrTooFewPoints
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(px, py); err != nil {
		return 0, err
	}
	return pl.Predict(x), nil
}
