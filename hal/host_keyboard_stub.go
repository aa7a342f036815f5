//go:build !tinygo && !cgo

package hal

type hostKeyboard struct {
	ch chan KeyEvent
}

func newHostKeyboard() *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64)}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

func (k *hostKeyboard) emit(ev KeyEvent) {
	select {
	case k.ch <- ev:
	default:
	}
}

// poll has nothing to read without the window backend; the console feeds
// events through emit.
func (k *hostKeyboard) poll() {}
