//go:build tinygo && !baremetal

package hal

import (
	"os"
	"runtime"
)

type tinyGoHostHAL struct {
	logger printLogger
	led    *printLED
	fb     *tinyGoHostFramebuffer
	kbd    *idleKeyboard
	t      *tickSource
	mpu    *softMPU
}

// New returns a TinyGo-on-host HAL implementation.
//
// This is used by `tinygo run` targets like linux/wasm where there is no MCU pin mapping.
// There is no input device; the serial stream is stdin/stdout.
func New() HAL {
	return &tinyGoHostHAL{
		led: &printLED{},
		fb:  newTinyGoHostFramebuffer(320, 320),
		kbd: &idleKeyboard{},
		t:   newTickSource(),
		mpu: newSoftMPU(defaultMPUSlots),
	}
}

func (h *tinyGoHostHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHostHAL) LED() LED         { return h.led }
func (h *tinyGoHostHAL) Display() Display { return tinyGoHostDisplay{fb: h.fb} }
func (h *tinyGoHostHAL) Input() Input     { return tinyGoHostInput{kbd: h.kbd} }
func (h *tinyGoHostHAL) Time() Time       { return h.t }
func (h *tinyGoHostHAL) Serial() Serial   { return stdioSerial{} }
func (h *tinyGoHostHAL) MPU() MPU         { return h.mpu }

type tinyGoHostDisplay struct {
	fb Framebuffer
}

func (d tinyGoHostDisplay) Framebuffer() Framebuffer { return d.fb }

type tinyGoHostInput struct {
	kbd Keyboard
}

func (in tinyGoHostInput) Keyboard() Keyboard { return in.kbd }

// printLogger writes through the runtime's println, which needs no os support.
type printLogger struct{}

func (printLogger) WriteLineString(s string) { println(s) }
func (printLogger) WriteLineBytes(b []byte)  { println(string(b)) }

type printLED struct {
	on bool
}

func (l *printLED) High() { l.set(true) }
func (l *printLED) Low()  { l.set(false) }

func (l *printLED) set(on bool) {
	if l.on == on {
		return
	}
	l.on = on
	if on {
		println("led: HIGH (tinygo/" + runtime.GOOS + ")")
	} else {
		println("led: LOW (tinygo/" + runtime.GOOS + ")")
	}
}

// idleKeyboard never produces events.
type idleKeyboard struct{}

func (*idleKeyboard) Events() <-chan KeyEvent { return nil }

type stdioSerial struct{}

func (stdioSerial) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioSerial) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
