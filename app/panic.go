package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"warden/hal"
	"warden/wardenos/kernel"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	panicFontHeight = 10
	panicFontOffset = 7
)

func installPanicHandler(h hal.HAL) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := []string{
			fmt.Sprintf("core: %d", info.Core),
			fmt.Sprintf("process: %d", info.PID),
			fmt.Sprintf("panic: %v", info.Value),
		}
		if len(info.Stack) > 0 {
			lines = append(lines, "stack:")
			lines = append(lines, splitLines(string(info.Stack))...)
		} else {
			lines = append(lines, "stack: unavailable")
		}
		showHalt(h, "Warden Panic", lines)
	})
}

// showHalt logs lines and paints them on a white screen.
func showHalt(h hal.HAL, title string, lines []string) {
	if l := h.Logger(); l != nil {
		l.WriteLineString(title + ":")
		for _, line := range lines {
			l.WriteLineString("  " + line)
		}
	}

	disp := h.Display()
	if disp == nil {
		return
	}
	fb := disp.Framebuffer()
	if fb == nil || fb.Buffer() == nil || fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	fb.ClearRGB(255, 255, 255)

	font := &proggy.TinySZ8pt7b
	_, outboxWidth := tinyfont.LineWidth(font, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 {
		_ = fb.Present()
		return
	}

	d := panicDisplay{fb: fb}
	fg := color.RGBA{R: 0, G: 0, B: 0, A: 255}
	cols := int16(fb.Width()) / fontWidth
	if cols <= 0 {
		cols = 1
	}
	maxH := int16(fb.Height())

	y := int16(0)
	for _, line := range append([]string{title + ":"}, lines...) {
		for len(line) > 0 && y+panicFontHeight <= maxH {
			chunk, rest := takeRunes(line, cols)
			drawTextLine(d, font, fontWidth, 0, y, chunk, fg)
			y += panicFontHeight
			line = strings.TrimLeft(rest, " ")
		}
		if y+panicFontHeight > maxH {
			break
		}
	}
	_ = fb.Present()
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line == "" {
			continue
		}
		out = append(out, strings.ReplaceAll(line, "\t", "  "))
	}
	return out
}

func drawTextLine(d panicDisplay, font tinyfont.Fonter, fontWidth, x0, y0 int16, s string, fg color.RGBA) {
	x := x0
	for _, r := range s {
		tinyfont.DrawChar(d, font, x, y0+panicFontOffset, r, fg)
		x += fontWidth
	}
}

// panicDisplay draws straight into the framebuffer, bypassing any terminal
// state that may be inconsistent after a crash.
type panicDisplay struct {
	fb hal.Framebuffer
}

func (d panicDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d panicDisplay) SetPixel(x, y int16, c color.RGBA) {
	buf := d.fb.Buffer()
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}
	pixel := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
	off := iy*d.fb.StrideBytes() + ix*2
	if off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d panicDisplay) Display() error { return nil }

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	i := 0
	for count := int16(0); i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
