//go:build tinygo && baremetal

package hal

import (
	"machine"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	fb     Framebuffer
	kbd    *buttonKeyboard
	t      *tickSource
	serial *uartSerial
	mpu    *softMPU
}

// New returns a Pico (RP2040/RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// Button: GP15 to ground, reported as KeySpace.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    &pinLED{pin: ledPin},
		fb:     &stubFramebuffer{w: 320, h: 320, format: PixelFormatRGB565},
		kbd:    newButtonKeyboard(machine.GP15, KeySpace),
		t:      newTickSource(),
		serial: &uartSerial{uart: uart},
		mpu:    newSoftMPU(defaultMPUSlots),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) Display() Display { return tinyGoDisplay{fb: h.fb} }
func (h *tinyGoHAL) Input() Input     { return tinyGoInput{kbd: h.kbd} }
func (h *tinyGoHAL) Time() Time       { return h.t }
func (h *tinyGoHAL) Serial() Serial   { return h.serial }
func (h *tinyGoHAL) MPU() MPU         { return h.mpu }
