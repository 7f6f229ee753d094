// Package rgb565 holds the dense pixel buffer streamed to the panel and the
// conversion from standard Go images into it.
//
// Layout is the one the ST7735S expects in 16-bit color mode: row-major,
// two bytes per pixel, high byte first (RRRRRGGG GGGBBBBB).
package rgb565

import (
	"fmt"
	"image"
	"image/color"
)

// Buffer is a W×H RGB565 framebuffer. Pix is always exactly W*H*2 bytes.
type Buffer struct {
	W, H int
	Pix  []byte
}

// New returns a zeroed (black) buffer.
func New(w, h int) *Buffer {
	return &Buffer{W: w, H: h, Pix: make([]byte, w*h*2)}
}

// pack converts 8-bit RGB to a 565 word.
func pack(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3
}

// Set writes one pixel. Out-of-range coordinates are ignored.
func (f *Buffer) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return
	}
	r, g, b, _ := c.RGBA()
	v := pack(uint8(r>>8), uint8(g>>8), uint8(b>>8))
	i := (y*f.W + x) * 2
	f.Pix[i] = byte(v >> 8)
	f.Pix[i+1] = byte(v)
}

// Fill paints the whole buffer with one color.
func (f *Buffer) Fill(c color.Color) {
	r, g, b, _ := c.RGBA()
	v := pack(uint8(r>>8), uint8(g>>8), uint8(b>>8))
	hi, lo := byte(v>>8), byte(v)
	for i := 0; i < len(f.Pix); i += 2 {
		f.Pix[i] = hi
		f.Pix[i+1] = lo
	}
}

// FromImage converts img into a new buffer of the same size. NRGBA and RGBA
// sources take a stride-direct path; anything else goes through At().
func FromImage(img image.Image) (*Buffer, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("rgb565: empty image %dx%d", w, h)
	}
	f := New(w, h)

	switch src := img.(type) {
	case *image.NRGBA:
		fromStride(f, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y))
	case *image.RGBA:
		fromStride(f, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y))
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				f.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	return f, nil
}

func fromStride(f *Buffer, pix []byte, stride, base int) {
	for y := 0; y < f.H; y++ {
		row := base + y*stride
		di := y * f.W * 2
		for x := 0; x < f.W; x++ {
			i := row + x*4
			v := pack(pix[i], pix[i+1], pix[i+2])
			f.Pix[di] = byte(v >> 8)
			f.Pix[di+1] = byte(v)
			di += 2
		}
	}
}
