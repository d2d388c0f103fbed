// Package tca9548a provides a driver for the TCA9548A 1-to-8 I2C multiplexer.
//
// Selecting a channel connects that downstream segment to the upstream bus;
// devices sharing one address are reached by selecting their segment first.
package tca9548a

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Address is the default I2C address (A2..A0 low).
const Address = 0x70

// Channels is the number of downstream segments.
const Channels = 8

// Errors returned by the driver.
var (
	ErrChannel  = errors.New("tca9548a: channel out of range")
	ErrNotFound = errors.New("tca9548a: not detected")
)

// Device wraps an I2C connection to a TCA9548A.
type Device struct {
	bus     drivers.I2C
	Address uint16

	selected int // -1 when unknown
	buf      [1]byte
}

// New creates a new multiplexer handle. It does not touch the device.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, Address: addr, selected: -1}
}

// Probe reads the control register to check the device answers.
func (d *Device) Probe() error {
	if err := d.bus.Tx(d.Address, nil, d.buf[:]); err != nil {
		return errors.Join(ErrNotFound, err)
	}
	return nil
}

// Select connects segment ch and disconnects all others. The write is
// skipped when ch is already selected.
func (d *Device) Select(ch int) error {
	if ch < 0 || ch >= Channels {
		return ErrChannel
	}
	if d.selected == ch {
		return nil
	}
	d.buf[0] = 1 << uint(ch)
	if err := d.bus.Tx(d.Address, d.buf[:], nil); err != nil {
		d.selected = -1
		return err
	}
	d.selected = ch
	return nil
}

// Disable disconnects every segment.
func (d *Device) Disable() error {
	d.buf[0] = 0
	d.selected = -1
	return d.bus.Tx(d.Address, d.buf[:], nil)
}
