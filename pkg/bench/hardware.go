package bench

import (
	"fmt"

	"tinygo.org/x/drivers"

	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/drivers/ina219"
	"github.com/itohio/pvstab/pkg/drivers/mcp4725"
	"github.com/itohio/pvstab/pkg/drivers/tca9548a"
)

// Hardware is the bench built from INA219 sensors and MCP4725 DACs, one of
// each per channel. The sensors sit behind one TCA9548A and the DACs behind
// another; segment n of each multiplexer is channel n.
type Hardware struct {
	sensorMux *tca9548a.Device
	dacMux    *tca9548a.Device
	sensors   []*ina219.Device
	dacs      []*mcp4725.Device

	vref    float32
	maxCode uint16

	light Output
	led   Output
}

// Ensure Hardware implements Bench.
var _ Bench = (*Hardware)(nil)

// NewHardware creates the bench on bus. light and led may be nil when the
// board does not populate them.
func NewHardware(bus drivers.I2C, cfg *config.Config, light, led Output) *Hardware {
	if cfg == nil {
		cfg = config.Default()
	}
	n := cfg.Board.Channels
	if n <= 0 || n > tca9548a.Channels {
		n = tca9548a.Channels
	}

	h := &Hardware{
		sensorMux: tca9548a.New(bus, cfg.Sensor.MuxAddress),
		dacMux:    tca9548a.New(bus, cfg.DAC.MuxAddress),
		sensors:   make([]*ina219.Device, n),
		dacs:      make([]*mcp4725.Device, n),
		vref:      float32(cfg.DAC.VRef),
		maxCode:   cfg.DAC.MaxCode,
		light:     light,
		led:       led,
	}
	for ch := range n {
		h.sensors[ch] = ina219.New(bus, cfg.Sensor.Address)
		h.dacs[ch] = mcp4725.New(bus, cfg.DAC.Address)
	}
	return h
}

// Probe checks both multiplexers, configures every sensor and checks every
// DAC. The returned error names the first device that did not answer.
func (h *Hardware) Probe() error {
	if err := h.sensorMux.Probe(); err != nil {
		return fmt.Errorf("sensor mux: %w", err)
	}
	if err := h.dacMux.Probe(); err != nil {
		return fmt.Errorf("dac mux: %w", err)
	}
	for ch := range h.sensors {
		if err := h.sensorMux.Select(ch); err != nil {
			return fmt.Errorf("sensor %d: %w", ch, err)
		}
		if err := h.sensors[ch].Configure(); err != nil {
			return fmt.Errorf("sensor %d: %w", ch, err)
		}
		if err := h.dacMux.Select(ch); err != nil {
			return fmt.Errorf("dac %d: %w", ch, err)
		}
		if err := h.dacs[ch].Probe(); err != nil {
			return fmt.Errorf("dac %d: %w", ch, err)
		}
	}
	return nil
}

// Channels returns the number of populated channels.
func (h *Hardware) Channels() int {
	return len(h.sensors)
}

// Read samples channel ch. The bias is the load voltage (bus plus shunt
// drop); the current is sign-flipped so generated photocurrent is positive.
func (h *Hardware) Read(ch int) (Reading, error) {
	if ch < 0 || ch >= len(h.sensors) {
		return Reading{}, ErrChannel
	}
	if err := h.sensorMux.Select(ch); err != nil {
		return Reading{}, err
	}
	m, err := h.sensors[ch].Read()
	if err != nil {
		return Reading{}, fmt.Errorf("sensor %d: %w", ch, err)
	}
	return Reading{
		BiasV:     float64(m.LoadV()),
		CurrentMA: float64(-m.CurrentMA),
	}, nil
}

// Write sets the DAC of channel ch to the code for biasV.
func (h *Hardware) Write(ch int, biasV float64) error {
	if ch < 0 || ch >= len(h.dacs) {
		return ErrChannel
	}
	if err := h.dacMux.Select(ch); err != nil {
		return err
	}
	code := BiasToCode(float32(biasV), h.vref, h.maxCode)
	if err := h.dacs[ch].SetCode(code); err != nil {
		return fmt.Errorf("dac %d: %w", ch, err)
	}
	return nil
}

// Illumination switches the light relay.
func (h *Hardware) Illumination(on bool) error {
	if h.light != nil {
		h.light.Set(on)
	}
	return nil
}

// Indicator switches the status LED.
func (h *Hardware) Indicator(on bool) error {
	if h.led != nil {
		h.led.Set(on)
	}
	return nil
}
