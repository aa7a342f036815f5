//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

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

var windowKeys = [...]struct {
	key  ebiten.Key
	code KeyCode
}{
	{ebiten.KeyArrowUp, KeyUp},
	{ebiten.KeyArrowDown, KeyDown},
	{ebiten.KeyArrowLeft, KeyLeft},
	{ebiten.KeyArrowRight, KeyRight},
	{ebiten.KeyEnter, KeyEnter},
	{ebiten.KeyEscape, KeyEscape},
	{ebiten.KeySpace, KeySpace},
}

// poll runs on the window's update goroutine.
func (k *hostKeyboard) poll() {
	for _, wk := range windowKeys {
		if inpututil.IsKeyJustPressed(wk.key) {
			k.emit(KeyEvent{Code: wk.code, Press: true})
		}
		if inpututil.IsKeyJustReleased(wk.key) {
			k.emit(KeyEvent{Code: wk.code})
		}
	}
	for _, r := range ebiten.AppendInputChars(nil) {
		if r == ' ' {
			continue
		}
		k.emit(KeyEvent{Press: true, Rune: r})
	}
}
