package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var (
	ErrNotImplemented = errors.New("not implemented")
	ErrMPUSlots       = errors.New("mpu: too many regions")
	ErrMPURegion      = errors.New("mpu: bad region")
)

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyCode is a minimal key identifier.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyEscape
	KeySpace
)

// KeyEvent is a keyboard event.
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events (best-effort on each platform).
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// Time provides a base tick stream.
//
// One tick is one millisecond on every platform.
type Time interface {
	Ticks() <-chan uint64
}

// Serial is a raw byte stream to the outside world.
type Serial interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// MPURegion is one entry of the protection unit.
type MPURegion struct {
	Base  uintptr
	Size  uintptr
	Read  bool
	Write bool
	Exec  bool
}

// MPU is the memory protection unit. Load replaces the complete region set;
// anything outside the loaded regions faults for unprivileged code.
type MPU interface {
	Slots() int
	Load(regions []MPURegion) error
}

// MPUChecker is implemented by protection units that can tell whether a data
// access would fault under the loaded region set.
type MPUChecker interface {
	Allows(addr, n uintptr, write bool) bool
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Display() Display
	Input() Input
	Time() Time
	Serial() Serial
	MPU() MPU
}
