package bench

import (
	"github.com/chewxy/math32"

	"github.com/itohio/pvstab/pkg/mathx"
)

// BiasToCode converts a bias voltage to a DAC code:
//
//	code = clamp(round(bias * maxCode / vref), 0, maxCode)
//
// Any bias outside [0, vref) maps to code 0, as does NaN. A request at or
// above the reference drives the output to 0 V rather than full scale.
func BiasToCode(biasV, vref float32, maxCode uint16) uint16 {
	if vref <= 0 || math32.IsNaN(biasV) || biasV < 0 || biasV >= vref {
		return 0
	}
	code := math32.Floor(biasV*float32(maxCode)/vref + 0.5)
	return uint16(mathx.Clamp(code, 0, float32(maxCode)))
}

// CodeToBias is the inverse of BiasToCode for codes in range.
func CodeToBias(code uint16, vref float32, maxCode uint16) float32 {
	if maxCode == 0 {
		return 0
	}
	return float32(mathx.Clamp(code, 0, maxCode)) * vref / float32(maxCode)
}
