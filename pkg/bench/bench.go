// Package bench is the channel I/O layer the controllers drive: per-channel
// bias write and readback plus the illumination relay and indicator LED.
//
// Two implementations exist: Hardware, which talks to the INA219/MCP4725
// array through the I2C multiplexers, and Sim, a single-diode model of a
// photovoltaic cell per channel used by tests and the host loopback link.
package bench

import "errors"

// ErrChannel is returned for a channel index outside [0, Channels()).
var ErrChannel = errors.New("bench: channel out of range")

// Reading is one sample from one channel.
type Reading struct {
	BiasV     float64 // voltage across the device
	CurrentMA float64 // photocurrent, positive when the cell generates
}

// Bench is the per-channel read/write contract.
type Bench interface {
	Channels() int
	Read(ch int) (Reading, error)
	Write(ch int, biasV float64) error
	Illumination(on bool) error
	Indicator(on bool) error
}

// Output is a one-way digital output such as a relay or LED pin.
type Output interface {
	Set(on bool)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(on bool)

func (f OutputFunc) Set(on bool) { f(on) }

// Safe drives every channel to 0 V and turns the indicator and the
// illumination off. All outputs are attempted; the errors are joined.
func Safe(b Bench) error {
	var errs []error
	for ch := 0; ch < b.Channels(); ch++ {
		if err := b.Write(ch, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.Indicator(false); err != nil {
		errs = append(errs, err)
	}
	if err := b.Illumination(false); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WriteAll applies the same bias to every channel.
func WriteAll(b Bench, biasV float64) error {
	for ch := 0; ch < b.Channels(); ch++ {
		if err := b.Write(ch, biasV); err != nil {
			return err
		}
	}
	return nil
}
