//go:build tinygo && baremetal

package hal

import (
	"machine"
	"time"
)

type tinyGoDisplay struct {
	fb Framebuffer
}

func (d tinyGoDisplay) Framebuffer() Framebuffer { return d.fb }

type tinyGoInput struct {
	kbd Keyboard
}

func (in tinyGoInput) Keyboard() Keyboard { return in.kbd }

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }

type uartSerial struct {
	uart *machine.UART
}

func (s *uartSerial) Read(p []byte) (int, error) {
	if s.uart == nil {
		return 0, ErrNotImplemented
	}
	return s.uart.Read(p)
}

func (s *uartSerial) Write(p []byte) (int, error) {
	if s.uart == nil {
		return 0, ErrNotImplemented
	}
	return s.uart.Write(p)
}

// buttonKeyboard samples an active-low push button every 10ms and reports
// debounced presses and releases as code.
type buttonKeyboard struct {
	ch chan KeyEvent
}

func newButtonKeyboard(pin machine.Pin, code KeyCode) *buttonKeyboard {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	k := &buttonKeyboard{ch: make(chan KeyEvent, 8)}
	go func() {
		pressed := false
		stable := 0
		for {
			time.Sleep(10 * time.Millisecond)
			down := !pin.Get()
			if down == pressed {
				stable = 0
				continue
			}
			stable++
			if stable < 3 {
				continue
			}
			stable = 0
			pressed = down
			select {
			case k.ch <- KeyEvent{Code: code, Press: down}:
			default:
			}
		}
	}()
	return k
}

func (k *buttonKeyboard) Events() <-chan KeyEvent { return k.ch }
