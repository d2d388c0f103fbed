package config

import (
	"time"
)

// MaxChannels is the number of bias/measurement channels a board can carry.
const MaxChannels = 8

// Config represents the bench configuration shared by the firmware and the host.
type Config struct {
	Serial          SerialConfig          `yaml:"serial"`
	Board           BoardConfig           `yaml:"board"`
	DAC             DACConfig             `yaml:"dac"`
	Sensor          SensorConfig          `yaml:"sensor"`
	Protocol        ProtocolConfig        `yaml:"protocol"`
	Scan            ScanConfig            `yaml:"scan"`
	MPPT            MPPTConfig            `yaml:"mppt"`
	ConstantVoltage ConstantVoltageConfig `yaml:"constant_voltage"`
	Analysis        AnalysisConfig        `yaml:"analysis"`
	Output          OutputConfig          `yaml:"output"`
	Mock            MockConfig            `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // How long to wait for the board banner
}

// BoardConfig describes the board itself.
type BoardConfig struct {
	ID       int `yaml:"id"`
	Channels int `yaml:"channels"` // Number of populated channels (1..8)
}

// DACConfig contains the bias DAC parameters.
type DACConfig struct {
	VRef       float64 `yaml:"vref"`
	MaxCode    uint16  `yaml:"max_code"`
	Address    uint16  `yaml:"address"`
	MuxAddress uint16  `yaml:"mux_address"`
}

// SensorConfig contains the current/voltage sensor parameters.
type SensorConfig struct {
	Address    uint16 `yaml:"address"`
	MuxAddress uint16 `yaml:"mux_address"`
}

// ProtocolConfig contains the host protocol limits.
type ProtocolConfig struct {
	LineCapacity int `yaml:"line_capacity"` // Receive buffer size in bytes
}

// ScanConfig contains board constants for the voltage sweep.
type ScanConfig struct {
	SampleOverhead time.Duration `yaml:"sample_overhead"` // Time to read all sensors once
}

// Envelope is the plausible operating range of a device under test.
type Envelope struct {
	BiasMin    float64 `yaml:"bias_min"`    // V
	BiasMax    float64 `yaml:"bias_max"`    // V
	CurrentMin float64 `yaml:"current_min"` // mA
	CurrentMax float64 `yaml:"current_max"` // mA
}

// MPPTConfig contains board defaults for the tracker.
type MPPTConfig struct {
	Smoothing    int      `yaml:"smoothing"` // Moving average window for power
	Plausibility Envelope `yaml:"plausibility"`
}

// ConstantVoltageConfig contains board defaults for the bias hold.
type ConstantVoltageConfig struct {
	RowInterval time.Duration `yaml:"row_interval"`
}

// AnalysisConfig contains the parameters used to turn rows into efficiencies.
type AnalysisConfig struct {
	CellAreaMM2     float64 `yaml:"cell_area_mm2"`
	IrradianceMWcm2 float64 `yaml:"irradiance_mw_cm2"`
}

// OutputConfig contains host output locations.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// MockConfig contains simulated bench configuration.
type MockConfig struct {
	IscMA       float64 `yaml:"isc_ma"`       // Short-circuit photocurrent (mA)
	Voc         float64 `yaml:"voc"`          // Open-circuit voltage (V)
	Ideality    float64 `yaml:"ideality"`     // Diode ideality factor
	NoiseMA     float64 `yaml:"noise_ma"`     // Current noise amplitude (mA)
	GlitchEvery int     `yaml:"glitch_every"` // Emit an implausible reading every N reads (0 = never)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:         "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate:     115200,
			ReadyTimeout: 10 * time.Second,
		},
		Board: BoardConfig{
			ID:       0,
			Channels: MaxChannels,
		},
		DAC: DACConfig{
			VRef:       3.3,
			MaxCode:    4095,
			Address:    0x62,
			MuxAddress: 0x71,
		},
		Sensor: SensorConfig{
			Address:    0x40,
			MuxAddress: 0x70,
		},
		Protocol: ProtocolConfig{
			LineCapacity: 200,
		},
		Scan: ScanConfig{
			SampleOverhead: 35 * time.Millisecond,
		},
		MPPT: MPPTConfig{
			Smoothing: 5,
			Plausibility: Envelope{
				BiasMin:    -0.05,
				BiasMax:    2.5,
				CurrentMin: -0.2,
				CurrentMax: 25.0,
			},
		},
		ConstantVoltage: ConstantVoltageConfig{
			RowInterval: 400 * time.Millisecond,
		},
		Analysis: AnalysisConfig{
			CellAreaMM2:     12.8,
			IrradianceMWcm2: 100,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Mock: MockConfig{
			IscMA:       2.5,
			Voc:         1.1,
			Ideality:    1.8,
			NoiseMA:     0.005,
			GlitchEvery: 0,
		},
	}
}
