//go:build !tinygo

package hal

import "sync"

type hostFramebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	stride int
	buf    []byte
	// front is the last presented frame; the window draws from it.
	front []byte
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	stride := width * 2
	return &hostFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		buf:    make([]byte, stride*height),
		front:  make([]byte, stride*height),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.stride }
func (f *hostFramebuffer) Buffer() []byte      { return f.buf }

func (f *hostFramebuffer) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.front, f.buf)
	return nil
}

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	fillRGB565(f.buf, rgb565(r, g, b))
}

func (f *hostFramebuffer) snapshotRGB565(dst []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.front)
}
