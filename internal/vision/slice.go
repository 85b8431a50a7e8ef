package vision

import (
	"image"
)

// ImageSlice is a rectangular view into a shared RGBA pixel buffer.
// Sub-rectangles alias the parent's memory, so rendering into a view
// is visible through every other view of the same buffer.
type ImageSlice struct {
	buf    []byte
	stride int // bytes per backing row
	offset int // byte offset of this view's top-left pixel
	width  int
	height int
}

// NewImage allocates a width x height buffer initialized to opaque white.
func NewImage(width, height int) ImageSlice {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	buf := make([]byte, 4*width*height)
	for i := range buf {
		buf[i] = 0xFF
	}
	return ImageSlice{
		buf:    buf,
		stride: 4 * width,
		width:  width,
		height: height,
	}
}

// Width returns the view width in pixels.
func (s ImageSlice) Width() int { return s.width }

// Height returns the view height in pixels.
func (s ImageSlice) Height() int { return s.height }

// SubRect returns a view of the rectangle [x, x+width) x [y, y+height),
// clamped to this slice's bounds.
func (s ImageSlice) SubRect(x, y, width, height int) ImageSlice {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x > s.width {
		x = s.width
	}
	if y > s.height {
		y = s.height
	}
	if width > s.width-x {
		width = s.width - x
	}
	if height > s.height-y {
		height = s.height - y
	}
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return ImageSlice{
		buf:    s.buf,
		stride: s.stride,
		offset: s.offset + 4*x + y*s.stride,
		width:  width,
		height: height,
	}
}

// Clone copies the view into a tightly packed standalone slice.
func (s ImageSlice) Clone() ImageSlice {
	out := NewImage(s.width, s.height)
	for y := 0; y < s.height; y++ {
		src := s.buf[s.offset+y*s.stride : s.offset+y*s.stride+4*s.width]
		dst := out.buf[y*out.stride : (y+1)*out.stride]
		copy(dst, src)
	}
	return out
}

// RGBA exposes the view as an image.RGBA sharing the same memory.
func (s ImageSlice) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    s.buf[s.offset:],
		Stride: s.stride,
		Rect:   image.Rect(0, 0, s.width, s.height),
	}
}

// Fill paints the whole view with one RGBA color.
func (s ImageSlice) Fill(r, g, b, a byte) {
	for y := 0; y < s.height; y++ {
		row := s.buf[s.offset+y*s.stride : s.offset+y*s.stride+4*s.width]
		for x := 0; x < len(row); x += 4 {
			row[x] = r
			row[x+1] = g
			row[x+2] = b
			row[x+3] = a
		}
	}
}

// SetPixel writes one pixel; out-of-bounds coordinates are ignored.
func (s ImageSlice) SetPixel(x, y int, r, g, b, a byte) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return
	}
	i := s.offset + y*s.stride + 4*x
	s.buf[i] = r
	s.buf[i+1] = g
	s.buf[i+2] = b
	s.buf[i+3] = a
}
