package hal

func rgb565(r, g, b uint8) uint16 {
	rr := uint16(r>>3) & 0x1F
	gg := uint16(g>>2) & 0x3F
	bb := uint16(b>>3) & 0x1F
	return (rr << 11) | (gg << 5) | bb
}

func rgb888From565(p uint16) (r, g, b uint8) {
	rr := (p >> 11) & 0x1F
	gg := (p >> 5) & 0x3F
	bb := p & 0x1F

	r = uint8((rr * 255) / 31)
	g = uint8((gg * 255) / 63)
	b = uint8((bb * 255) / 31)
	return r, g, b
}

// rgb565ToRGBA expands little-endian RGB565 pixels of src into opaque RGBA
// pixels of dst, stopping at whichever buffer ends first.
func rgb565ToRGBA(dst, src []byte) {
	for i, j := 0, 0; i+1 < len(src) && j+3 < len(dst); i, j = i+2, j+4 {
		r, g, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		dst[j+0] = r
		dst[j+1] = g
		dst[j+2] = b
		dst[j+3] = 0xFF
	}
}

func fillRGB565(buf []byte, pixel uint16) {
	lo := byte(pixel)
	hi := byte(pixel >> 8)
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i] = lo
		buf[i+1] = hi
	}
}
