//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/pvstab/pkg/bench"
	"github.com/itohio/pvstab/pkg/config"
	"github.com/itohio/pvstab/pkg/engine"
)

var (
	uart = machine.UART0
	i2c  = machine.I2C0

	// Serial receive buffer, drained into the engine every loop
	rxBuffer [64]byte
)

func main() {
	// The console shares the UART with the host protocol
	engine.Logf = func(string, ...any) {}

	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LIGHT.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED.Low()
	PIN_LIGHT.Low()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	if err := i2c.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_SDA,
		SCL:       PIN_SCL,
	}); err != nil {
		halt("I2C: " + err.Error())
	}

	cfg := config.Default()
	cfg.Board.ID = BOARD_ID
	cfg.Board.Channels = NUM_CHANNELS

	hw := bench.NewHardware(i2c, cfg,
		bench.OutputFunc(PIN_LIGHT.Set),
		bench.OutputFunc(PIN_LED.Set),
	)
	if err := hw.Probe(); err != nil {
		halt(err.Error() + " not detected")
	}

	e := engine.New(cfg, hw, uart)
	if err := e.Boot(); err != nil {
		halt(err.Error())
	}

	for {
		processSerial(e)
		e.Poll(time.Now())

		// Wake early when the active controller is due
		wait := LOOP_INTERVAL_US * time.Microsecond
		if next, ok := e.Next(time.Now()); ok {
			wait = min(wait, time.Until(next))
		}
		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

// processSerial hands every buffered byte to the engine.
func processSerial(e *engine.Engine) {
	for uart.Buffered() > 0 {
		n := 0
		for n < len(rxBuffer) && uart.Buffered() > 0 {
			data, err := uart.ReadByte()
			if err != nil {
				break
			}
			rxBuffer[n] = data
			n++
		}
		if n == 0 {
			return
		}
		e.Feed(rxBuffer[:n])
	}
}

// halt reports a fatal hardware fault and stops. Only a reset recovers.
func halt(msg string) {
	print("error: ", msg, "\n")
	for {
		PIN_LED.High()
		time.Sleep(100 * time.Millisecond)
		PIN_LED.Low()
		time.Sleep(900 * time.Millisecond)
	}
}
