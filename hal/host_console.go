//go:build !tinygo

package hal

import (
	"sync"

	"github.com/mattn/go-tty"
)

// hostConsole reads the controlling terminal in raw mode and feeds key
// presses into the host keyboard.
type hostConsole struct {
	t    *tty.TTY
	once sync.Once
	err  error
}

func openConsole(kbd *hostKeyboard) (*hostConsole, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}
	c := &hostConsole{t: t}
	go c.loop(kbd)
	return c, nil
}

func (c *hostConsole) loop(kbd *hostKeyboard) {
	var dec consoleDecoder
	for {
		r, err := c.t.ReadRune()
		if err != nil {
			return
		}
		if ev, ok := dec.feed(r); ok {
			kbd.emit(ev)
		}
	}
}

func (c *hostConsole) Close() error {
	c.once.Do(func() { c.err = c.t.Close() })
	return c.err
}

// consoleDecoder turns a raw terminal rune stream into key events. It knows
// the ANSI cursor sequences and a few control characters; everything else is a
// text key.
type consoleDecoder struct {
	state uint8
}

const (
	decText uint8 = iota
	decEscape
	decCSI
)

func (d *consoleDecoder) feed(r rune) (KeyEvent, bool) {
	switch d.state {
	case decEscape:
		if r == '[' {
			d.state = decCSI
			return KeyEvent{}, false
		}
		d.state = decText
		return KeyEvent{Code: KeyEscape, Press: true}, true
	case decCSI:
		d.state = decText
		code := KeyUnknown
		switch r {
		case 'A':
			code = KeyUp
		case 'B':
			code = KeyDown
		case 'C':
			code = KeyRight
		case 'D':
			code = KeyLeft
		}
		return KeyEvent{Code: code, Press: true}, code != KeyUnknown
	}

	switch r {
	case 0x1b:
		d.state = decEscape
		return KeyEvent{}, false
	case '\r', '\n':
		return KeyEvent{Code: KeyEnter, Press: true}, true
	case ' ':
		return KeyEvent{Code: KeySpace, Press: true, Rune: r}, true
	}
	return KeyEvent{Press: true, Rune: r}, true
}
