// Package mcp4725 provides a driver for the MCP4725 12-bit I2C DAC.
package mcp4725

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address is the default I2C address (A0 low).
const Address = 0x62

// MaxCode is the full-scale DAC code.
const MaxCode = 0x0FFF

const (
	cmdWriteDAC       = 0x40 // write DAC register, EEPROM untouched
	cmdWriteDACEEPROM = 0x60 // write DAC register and EEPROM
)

// Errors returned by the driver.
var (
	ErrNotFound = errors.New("mcp4725: not detected")
	ErrCode     = errors.New("mcp4725: code exceeds 12 bits")
)

// Device wraps an I2C connection to an MCP4725.
type Device struct {
	bus     drivers.I2C
	Address uint16

	buf [5]byte
}

// New creates a new DAC handle. It does not touch the device.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, Address: addr}
}

// Probe reads the status and DAC register block to check the device answers.
func (d *Device) Probe() error {
	if err := d.bus.Tx(d.Address, nil, d.buf[:]); err != nil {
		return errors.Join(ErrNotFound, err)
	}
	return nil
}

// SetCode writes a raw 12-bit code to the DAC register.
func (d *Device) SetCode(code uint16) error {
	return d.write(cmdWriteDAC, code)
}

// SetPowerOnCode writes code to the DAC register and the EEPROM so the output
// comes up at code after a power cycle.
func (d *Device) SetPowerOnCode(code uint16) error {
	return d.write(cmdWriteDACEEPROM, code)
}

// Code reads back the current DAC register value.
func (d *Device) Code() (uint16, error) {
	if err := d.bus.Tx(d.Address, nil, d.buf[:3]); err != nil {
		return 0, err
	}
	return uint16(d.buf[1])<<4 | uint16(d.buf[2])>>4, nil
}

func (d *Device) write(cmd byte, code uint16) error {
	if code > MaxCode {
		return ErrCode
	}
	w := d.buf[:3]
	w[0] = cmd
	w[1] = byte(code >> 4)
	w[2] = byte(code << 4)
	return d.bus.Tx(d.Address, w, nil)
}
