//go:build !tinygo

package trace

import (
	"fmt"
	"io"

	"github.com/fogleman/gg"

	"sparkrt/kernel"
)

// PNGOptions sizes the Gantt chart.
type PNGOptions struct {
	Width     int
	RowHeight int
	Levels    kernel.Priority
	Names     Names
}

const chartMargin = 48

// Chart draws spans as a Gantt chart with one row per priority level,
// highest at the top.
func Chart(spans []Span, opts PNGOptions) *gg.Context {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = 24
	}
	if opts.Levels == 0 {
		for _, s := range spans {
			opts.Levels = max(opts.Levels, s.Priority)
		}
		opts.Levels = max(opts.Levels, 1)
	}
	rows := int(opts.Levels)
	height := rows*opts.RowHeight + 2*chartMargin/3
	dc := gg.NewContext(opts.Width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	var t0 kernel.Tick
	var length int32 = 1
	if len(spans) > 0 {
		t0 = spans[0].Start
		for _, s := range spans {
			if d := s.End.Sub(t0); d > length {
				length = d
			}
		}
	}
	plotW := float64(opts.Width - chartMargin - 8)
	scale := plotW / float64(length)
	rowY := func(p kernel.Priority) float64 { return float64(int(opts.Levels-p) * opts.RowHeight) }

	dc.SetRGB(0.2, 0.2, 0.2)
	for p := kernel.Priority(1); p <= opts.Levels; p++ {
		y := rowY(p)
		dc.DrawStringAnchored(fmt.Sprintf("P%d", p), 6, y+float64(opts.RowHeight)/2, 0, 0.5)
		dc.SetRGB(0.9, 0.9, 0.9)
		dc.DrawLine(chartMargin, y+float64(opts.RowHeight), float64(opts.Width), y+float64(opts.RowHeight))
		dc.Stroke()
		dc.SetRGB(0.2, 0.2, 0.2)
	}

	for _, s := range spans {
		if s.Priority == 0 || s.Priority > opts.Levels {
			continue
		}
		x := chartMargin + float64(s.Start.Sub(t0))*scale
		w := max(float64(s.Ticks())*scale, 1)
		y := rowY(s.Priority) + 2
		h := float64(opts.RowHeight) - 4
		c := TaskColor(s.Task)
		dc.SetRGBA255(int(c.R), int(c.G), int(c.B), int(c.A))
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
		label := name(opts.Names, s.Task)
		if tw, _ := dc.MeasureString(label); tw+4 < w {
			dc.SetRGB(1, 1, 1)
			dc.DrawStringAnchored(label, x+2, y+h/2, 0, 0.5)
		}
	}

	axisY := float64(rows*opts.RowHeight) + 4
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawLine(chartMargin, axisY, float64(opts.Width), axisY)
	dc.Stroke()
	for i := 0; i <= 4; i++ {
		x := chartMargin + plotW*float64(i)/4
		dc.DrawStringAnchored(fmt.Sprintf("%d", uint32(t0)+uint32(float64(length)*float64(i)/4)), x, axisY+4, 0.5, 1)
	}
	return dc
}

// RenderPNG writes the Gantt chart of spans as a PNG image.
func RenderPNG(w io.Writer, spans []Span, opts PNGOptions) error {
	return Chart(spans, opts).EncodePNG(w)
}
