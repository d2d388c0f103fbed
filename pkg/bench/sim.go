package bench

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/itohio/pvstab/pkg/config"
)

// thermalVoltage is kT/q at 300 K.
const thermalVoltage = 0.025852

// glitchBiasV is reported instead of the real bias on a glitched read. It
// lies outside any sane plausibility envelope.
const glitchBiasV = 3.0

// Sim simulates a bench of photovoltaic cells, one per channel, using the
// single-diode model
//
//	I(V) = IL - I0 * (exp(V / (n*Vt)) - 1)
//
// with I0 chosen so that I(Voc) = 0 under illumination. Commanded bias is
// quantized through the DAC transfer function so readback matches what the
// hardware would apply.
type Sim struct {
	cfg      config.MockConfig
	vref     float32
	maxCode  uint16
	channels int

	mu      sync.Mutex
	bias    [config.MaxChannels]float32
	light   bool
	led     bool
	reads   int
	writes  int
	readErr error
}

// Ensure Sim implements Bench.
var _ Bench = (*Sim)(nil)

// NewSim creates a simulated bench from the board, DAC and mock sections of
// cfg. A nil cfg uses config.Default().
func NewSim(cfg *config.Config) *Sim {
	if cfg == nil {
		cfg = config.Default()
	}
	channels := cfg.Board.Channels
	if channels <= 0 || channels > config.MaxChannels {
		channels = config.MaxChannels
	}
	return &Sim{
		cfg:      cfg.Mock,
		vref:     float32(cfg.DAC.VRef),
		maxCode:  cfg.DAC.MaxCode,
		channels: channels,
	}
}

// Channels returns the number of simulated cells.
func (s *Sim) Channels() int {
	return s.channels
}

// Read returns the bias and current of channel ch at the last commanded
// bias.
func (s *Sim) Read(ch int) (Reading, error) {
	if ch < 0 || ch >= s.channels {
		return Reading{}, ErrChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return Reading{}, s.readErr
	}
	s.reads++

	v := s.bias[ch]
	i := s.current(ch, v) + s.noise()
	if s.cfg.GlitchEvery > 0 && s.reads%s.cfg.GlitchEvery == 0 {
		v = glitchBiasV
	}
	return Reading{BiasV: float64(v), CurrentMA: float64(i)}, nil
}

// Write commands the bias of channel ch.
func (s *Sim) Write(ch int, biasV float64) error {
	if ch < 0 || ch >= s.channels {
		return ErrChannel
	}
	code := BiasToCode(float32(biasV), s.vref, s.maxCode)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bias[ch] = CodeToBias(code, s.vref, s.maxCode)
	s.writes++
	return nil
}

// Illumination switches the simulated light source.
func (s *Sim) Illumination(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.light = on
	return nil
}

// Indicator switches the simulated LED.
func (s *Sim) Indicator(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led = on
	return nil
}

// Bias returns the bias currently applied to channel ch.
func (s *Sim) Bias(ch int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.bias[ch])
}

// Lit reports whether the light source is on.
func (s *Sim) Lit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.light
}

// LED reports whether the indicator is on.
func (s *Sim) LED() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// Reads returns the number of successful reads so far.
func (s *Sim) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Writes returns the number of bias writes so far.
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailReads makes every subsequent Read return err. A nil err restores
// normal operation.
func (s *Sim) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// current evaluates the diode model for channel ch at bias v. Each channel's
// photocurrent is derated slightly so the cells are distinguishable.
func (s *Sim) current(ch int, v float32) float32 {
	isc := float32(s.cfg.IscMA) * (1 - 0.02*float32(ch))
	nVt := float32(s.cfg.Ideality) * thermalVoltage
	if nVt <= 0 {
		nVt = thermalVoltage
	}
	i0 := isc / (math32.Exp(float32(s.cfg.Voc)/nVt) - 1)

	var il float32
	if s.light {
		il = isc
	}
	return il - i0*(math32.Exp(v/nVt)-1)
}

// noise returns a deterministic perturbation derived from the read counter.
func (s *Sim) noise() float32 {
	if s.cfg.NoiseMA == 0 {
		return 0
	}
	k := float32(s.reads)
	return (math32.Sin(k*0.7) + math32.Cos(k*1.3)) * float32(s.cfg.NoiseMA) * 0.5
}
