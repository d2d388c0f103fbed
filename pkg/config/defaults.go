package config

import "errors"

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadyTimeout == 0 {
		c.Serial.ReadyTimeout = def.Serial.ReadyTimeout
	}

	if c.Board.Channels == 0 {
		c.Board.Channels = def.Board.Channels
	}

	if c.DAC.VRef == 0 {
		c.DAC.VRef = def.DAC.VRef
	}
	if c.DAC.MaxCode == 0 {
		c.DAC.MaxCode = def.DAC.MaxCode
	}
	if c.DAC.Address == 0 {
		c.DAC.Address = def.DAC.Address
	}
	if c.DAC.MuxAddress == 0 {
		c.DAC.MuxAddress = def.DAC.MuxAddress
	}
	if c.Sensor.Address == 0 {
		c.Sensor.Address = def.Sensor.Address
	}
	if c.Sensor.MuxAddress == 0 {
		c.Sensor.MuxAddress = def.Sensor.MuxAddress
	}

	if c.Protocol.LineCapacity == 0 {
		c.Protocol.LineCapacity = def.Protocol.LineCapacity
	}
	if c.Scan.SampleOverhead == 0 {
		c.Scan.SampleOverhead = def.Scan.SampleOverhead
	}

	if c.MPPT.Smoothing == 0 {
		c.MPPT.Smoothing = def.MPPT.Smoothing
	}
	// An all-zero envelope means the section was omitted.
	if c.MPPT.Plausibility == (Envelope{}) {
		c.MPPT.Plausibility = def.MPPT.Plausibility
	}

	if c.ConstantVoltage.RowInterval == 0 {
		c.ConstantVoltage.RowInterval = def.ConstantVoltage.RowInterval
	}

	if c.Analysis.CellAreaMM2 == 0 {
		c.Analysis.CellAreaMM2 = def.Analysis.CellAreaMM2
	}
	if c.Analysis.IrradianceMWcm2 == 0 {
		c.Analysis.IrradianceMWcm2 = def.Analysis.IrradianceMWcm2
	}

	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}

	if c.Mock.IscMA == 0 {
		c.Mock.IscMA = def.Mock.IscMA
	}
	if c.Mock.Voc == 0 {
		c.Mock.Voc = def.Mock.Voc
	}
	if c.Mock.Ideality == 0 {
		c.Mock.Ideality = def.Mock.Ideality
	}
}

// Validation errors.
var (
	ErrChannels = errors.New("config: board.channels must be between 1 and 8")
	ErrEnvelope = errors.New("config: mppt.plausibility bounds are inverted")
	ErrDAC      = errors.New("config: dac.vref and dac.max_code must be positive")
	ErrLine     = errors.New("config: protocol.line_capacity must be at least 16 bytes")
)

// Validate checks the configuration for values the board cannot work with.
func (c *Config) Validate() error {
	if c.Board.Channels < 1 || c.Board.Channels > MaxChannels {
		return ErrChannels
	}
	env := c.MPPT.Plausibility
	if env.BiasMin > env.BiasMax || env.CurrentMin > env.CurrentMax {
		return ErrEnvelope
	}
	if c.DAC.VRef <= 0 || c.DAC.MaxCode == 0 {
		return ErrDAC
	}
	if c.Protocol.LineCapacity < 16 {
		return ErrLine
	}
	return nil
}
