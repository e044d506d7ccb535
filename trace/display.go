package trace

import (
	"image/color"

	"tinygo.org/x/drivers"

	"sparkrt/hal"
)

// Display draws into a rectangle of an RGB565 framebuffer. Coordinates are
// relative to the rectangle and clipped to it. It satisfies
// drivers.Displayer and the terminal's scrolling display interface.
type Display struct {
	fb     hal.Framebuffer
	x0, y0 int
	w, h   int
}

var _ drivers.Displayer = (*Display)(nil)

// NewDisplay covers the w by h rectangle at x0, y0, clamped to fb.
func NewDisplay(fb hal.Framebuffer, x0, y0, w, h int) *Display {
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return &Display{}
	}
	w = clampInt(w, 0, fb.Width()-x0)
	h = clampInt(h, 0, fb.Height()-y0)
	return &Display{fb: fb, x0: x0, y0: y0, w: w, h: h}
}

func (d *Display) Size() (x, y int16) { return int16(d.w), int16(d.h) }

func (d *Display) SetPixel(x, y int16, c color.RGBA) {
	if d.fb == nil || int(x) < 0 || int(y) < 0 || int(x) >= d.w || int(y) >= d.h {
		return
	}
	hal.SetPixel(d.fb, d.x0+int(x), d.y0+int(y), hal.RGB565(c.R, c.G, c.B))
}

func (d *Display) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

func (d *Display) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	if d.fb == nil {
		return nil
	}
	buf := d.fb.Buffer()
	if buf == nil {
		return nil
	}
	x0 := clampInt(int(x), 0, d.w)
	y0 := clampInt(int(y), 0, d.h)
	x1 := clampInt(int(x)+int(width), 0, d.w)
	y1 := clampInt(int(y)+int(height), 0, d.h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := hal.RGB565(c.R, c.G, c.B)
	lo := byte(pixel)
	hi := byte(pixel >> 8)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := (d.y0+py)*stride + d.x0*2
		for px := x0; px < x1; px++ {
			off := row + px*2
			if off+1 >= len(buf) {
				return nil
			}
			buf[off] = lo
			buf[off+1] = hi
		}
	}
	return nil
}

// ScrollUp moves the rectangle's contents up by pixels rows and clears the
// rows uncovered at the bottom.
func (d *Display) ScrollUp(pixels int16, bg color.RGBA) error {
	if d.fb == nil || d.fb.Buffer() == nil {
		return nil
	}
	n := clampInt(int(pixels), 0, d.h)
	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	for y := 0; y+n < d.h; y++ {
		dst := (d.y0+y)*stride + d.x0*2
		src := (d.y0+y+n)*stride + d.x0*2
		copy(buf[dst:dst+d.w*2], buf[src:src+d.w*2])
	}
	return d.FillRectangle(0, int16(d.h-n), int16(d.w), int16(n), bg)
}

// SetScroll is a no-op; the terminal scrolls in software.
func (d *Display) SetScroll(line int16) {}

func (d *Display) SetRotation(rotation drivers.Rotation) error { return nil }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
