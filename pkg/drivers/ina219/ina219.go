// Package ina219 provides a driver for the INA219 high-side current and bus
// voltage monitor.
//
// The driver programs the 16 V / 400 mA calibration (0.1 ohm shunt,
// 12-bit conversions, continuous shunt and bus mode) and reports values in
// mV, V and mA.
package ina219

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address is the default I2C address (A1, A0 low).
const Address = 0x40

// Registers.
const (
	regConfig      = 0x00
	regShunt       = 0x01
	regBus         = 0x02
	regPower       = 0x03
	regCurrent     = 0x04
	regCalibration = 0x05
)

// Config register fields for the 16 V / 400 mA range.
const (
	busRange16V      = 0x0000
	gain1_40mV       = 0x0000
	busADC12Bit      = 0x0180
	shuntADC12Bit    = 0x0018
	modeShuntBusCont = 0x0007
	config16V400mA   = busRange16V | gain1_40mV | busADC12Bit | shuntADC12Bit | modeShuntBusCont
	calibration400mA = 8192
)

// Register scaling at calibration400mA.
const (
	currentLSBmA = 0.05
	shuntLSBmV   = 0.01
	busLSBmV     = 4 // after dropping the 3 status bits
	powerLSBmW   = currentLSBmA * 20
)

// Errors returned by the driver.
var (
	ErrNotFound = errors.New("ina219: not detected")
)

// Measurement is one set of readings.
type Measurement struct {
	ShuntMV   float32
	BusV      float32
	CurrentMA float32
}

// LoadV returns the voltage across the load: bus voltage plus shunt drop.
func (m Measurement) LoadV() float32 {
	return m.BusV + m.ShuntMV/1000
}

// Device wraps an I2C connection to an INA219.
type Device struct {
	bus     drivers.I2C
	Address uint16

	w [3]byte
	r [2]byte
}

// New creates a new sensor handle. It does not touch the device.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, Address: addr}
}

// Configure programs the configuration and calibration registers.
func (d *Device) Configure() error {
	if err := d.writeRegister(regConfig, config16V400mA); err != nil {
		return errors.Join(ErrNotFound, err)
	}
	return d.writeRegister(regCalibration, calibration400mA)
}

// Read returns shunt voltage, bus voltage and current.
func (d *Device) Read() (Measurement, error) {
	var m Measurement

	shunt, err := d.readRegister(regShunt)
	if err != nil {
		return m, err
	}
	bus, err := d.readRegister(regBus)
	if err != nil {
		return m, err
	}
	// The calibration register is lost on a brown-out reset; rewrite it so
	// the current register stays meaningful.
	if err := d.writeRegister(regCalibration, calibration400mA); err != nil {
		return m, err
	}
	current, err := d.readRegister(regCurrent)
	if err != nil {
		return m, err
	}

	m.ShuntMV = float32(int16(shunt)) * shuntLSBmV
	m.BusV = float32(bus>>3) * busLSBmV / 1000
	m.CurrentMA = float32(int16(current)) * currentLSBmA
	return m, nil
}

// PowerMW reads the power register.
func (d *Device) PowerMW() (float32, error) {
	raw, err := d.readRegister(regPower)
	if err != nil {
		return 0, err
	}
	return float32(raw) * powerLSBmW, nil
}

func (d *Device) writeRegister(reg byte, v uint16) error {
	d.w[0] = reg
	d.w[1] = byte(v >> 8)
	d.w[2] = byte(v)
	return d.bus.Tx(d.Address, d.w[:], nil)
}

func (d *Device) readRegister(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.Address, d.w[:1], d.r[:]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}
