// Package control implements the experiment controllers: a linear voltage
// sweep, a perturb-and-observe maximum power point tracker and a
// constant-voltage hold.
//
// Controllers are step functions. Start applies the initial outputs and
// Step performs one unit of work, returning how long to wait before the next
// call. A Runner drives the active controller from a clock, so tests
// simulate time instead of sleeping.
package control

import (
	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/mathx"
)

// Accumulator sums the valid samples of one channel during one measurement
// step. Averages divide by the number of samples actually added; a step with
// no samples reports the previous step's averages.
type Accumulator struct {
	sumV, sumI float64
	n          int

	avgV, avgI float64
}

// Add accumulates one sample.
func (a *Accumulator) Add(r bench.Reading) {
	a.sumV += r.BiasV
	a.sumI += r.CurrentMA
	a.n++
}

// Count returns the number of samples in the current step.
func (a *Accumulator) Count() int {
	return a.n
}

// Average returns the mean bias and current of the current step.
func (a *Accumulator) Average() (biasV, currentMA float64) {
	if a.n > 0 {
		a.avgV = a.sumV / float64(a.n)
		a.avgI = a.sumI / float64(a.n)
	}
	return a.avgV, a.avgI
}

// Reset starts a new step. The last averages are kept.
func (a *Accumulator) Reset() {
	a.Average()
	a.sumV, a.sumI, a.n = 0, 0, 0
}

// Plausible reports whether r lies inside the envelope on both axes.
func Plausible(env config.Envelope, r bench.Reading) bool {
	return mathx.Between(r.BiasV, env.BiasMin, env.BiasMax) &&
		mathx.Between(r.CurrentMA, env.CurrentMin, env.CurrentMax)
}
