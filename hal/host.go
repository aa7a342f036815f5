//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// HostConfig selects optional host devices.
type HostConfig struct {
	// SerialPort, if set, names a serial device that mirrors the log and
	// serves as the Serial stream.
	SerialPort string
	SerialBaud int

	// Console turns terminal key presses into keyboard events. Used when no
	// window is open.
	Console bool
}

type hostHAL struct {
	logger  *hostLogger
	led     *hostLED
	fb      *hostFramebuffer
	kbd     *hostKeyboard
	t       *hostTime
	serial  *hostSerial
	mpu     *softMPU
	console *hostConsole
}

// New returns a host HAL implementation.
func New() HAL {
	h, _ := newHostHAL(HostConfig{})
	return h
}

// NewHost returns a host HAL with the optional devices of cfg opened.
func NewHost(cfg HostConfig) (HAL, error) {
	h, err := newHostHAL(cfg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newHostHAL(cfg HostConfig) (*hostHAL, error) {
	logger := &hostLogger{w: os.Stdout}
	h := &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		fb:     newHostFramebuffer(320, 320),
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
		serial: &hostSerial{r: os.Stdin, w: os.Stdout},
		mpu:    newSoftMPU(defaultMPUSlots),
	}
	if cfg.SerialPort != "" {
		port, err := openSerialPort(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			return nil, err
		}
		h.serial = port
		logger.mirror = port
	}
	if cfg.Console {
		c, err := openConsole(h.kbd)
		if err != nil {
			logger.WriteLineString(fmt.Sprintf("hal: console input unavailable: %v", err))
		} else {
			h.console = c
		}
	}
	return h, nil
}

// Close releases the optional devices.
func (h *hostHAL) Close() error {
	var err error
	if h.console != nil {
		err = h.console.Close()
	}
	if cerr := h.serial.Close(); err == nil {
		err = cerr
	}
	return err
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Serial() Serial   { return h.serial }
func (h *hostHAL) MPU() MPU         { return h.mpu }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu     sync.Mutex
	w      io.Writer
	mirror io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
	if l.mirror != nil {
		io.WriteString(l.mirror, s+"\r\n")
	}
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.WriteLineString(string(b))
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() { l.set(true) }
func (l *hostLED) Low()  { l.set(false) }

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	changed := l.on != on
	l.on = on
	l.mu.Unlock()
	if !changed {
		return
	}
	if on {
		l.logger.WriteLineString("led: HIGH")
	} else {
		l.logger.WriteLineString("led: LOW")
	}
}
