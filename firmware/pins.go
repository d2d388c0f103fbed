//go:build tinygo

package main

import "machine"

const (
	// Board identity reported in the HW_ID banner
	BOARD_ID = 1

	// Populated measurement channels (1..8)
	NUM_CHANNELS = 8

	// Indicator LED lit while a run is active
	PIN_LED = machine.LED

	// Illumination relay
	PIN_LIGHT = machine.D7

	// I2C bus shared by both multiplexers
	PIN_SDA       = machine.SDA_PIN
	PIN_SCL       = machine.SCL_PIN
	I2C_FREQUENCY = 400 * machine.KHz

	// Serial configuration
	// Longest row: "elapsed,bias," + 8 * "v,i," + run ~ 130 bytes.
	// 8 channels at ~10 rows/s = 1,300 bytes/sec; 115200 baud carries 11,520 bytes/sec.
	UART_BAUD_RATE = 115200

	// Idle poll interval of the main loop
	LOOP_INTERVAL_US = 200
)
