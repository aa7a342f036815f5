package report

import (
	"image/color"

	"warden/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay adapts a RGB565 framebuffer to the terminal. The terminal scrolls
// the way display controllers do: it keeps drawing into a circular frame and
// moves the first visible line. Pixels go to a back buffer in frame
// coordinates and Display copies it out rotated by the scroll line.
type fbDisplay struct {
	fb     hal.Framebuffer
	w, h   int
	back   []uint16
	scroll int
	rot    drivers.Rotation
}

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	d := &fbDisplay{fb: fb}
	if fb != nil && fb.Format() == hal.PixelFormatRGB565 {
		d.w, d.h = fb.Width(), fb.Height()
		if d.w > 0 && d.h > 0 {
			d.back = make([]uint16, d.w*d.h)
		}
	}
	return d
}

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.w), int16(d.h)
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if d.back == nil || ix < 0 || ix >= d.w || iy < 0 || iy >= d.h {
		return
	}
	d.back[iy*d.w+ix] = rgb565From888(c.R, c.G, c.B)
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	if d.back == nil {
		return nil
	}
	x0 := clampInt(int(x), 0, d.w)
	y0 := clampInt(int(y), 0, d.h)
	x1 := clampInt(int(x)+int(width), 0, d.w)
	y1 := clampInt(int(y)+int(height), 0, d.h)
	pixel := rgb565From888(c.R, c.G, c.B)
	for py := y0; py < y1; py++ {
		row := d.back[py*d.w : (py+1)*d.w]
		for px := x0; px < x1; px++ {
			row[px] = pixel
		}
	}
	return nil
}

// Display copies the back buffer to the framebuffer and presents it.
func (d *fbDisplay) Display() error {
	if d.back == nil {
		return nil
	}
	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	for y := 0; y < d.h; y++ {
		src := d.back[((y+d.scroll)%d.h)*d.w:]
		off := y * stride
		if off+d.w*2 > len(buf) {
			break
		}
		for x := 0; x < d.w; x++ {
			p := src[x]
			buf[off+x*2] = byte(p)
			buf[off+x*2+1] = byte(p >> 8)
		}
	}
	return d.fb.Present()
}

// SetScroll sets the frame line shown at the top of the screen.
func (d *fbDisplay) SetScroll(line int16) {
	if d.h == 0 {
		return
	}
	d.scroll = ((int(line) % d.h) + d.h) % d.h
}

// SetRotation is recorded only; the report terminal always renders upright.
func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error {
	d.rot = rotation
	return nil
}

func rgb565From888(r, g, b uint8) uint16 {
	return uint16((uint16(r>>3)&0x1F)<<11 | (uint16(g>>2)&0x3F)<<5 | (uint16(b>>3) & 0x1F))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
