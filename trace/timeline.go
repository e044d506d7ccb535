package trace

import (
	"fmt"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"sparkrt/kernel"
)

const (
	timelineHeader = 12
	timelineLabel  = 20
)

var (
	timelineBG   = color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xff}
	timelineFG   = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	timelineGrid = color.RGBA{R: 0x30, G: 0x30, B: 0x40, A: 0xff}
)

var palette = []color.RGBA{
	{R: 0x4e, G: 0x79, B: 0xa7, A: 0xff},
	{R: 0xf2, G: 0x8e, B: 0x2b, A: 0xff},
	{R: 0xe1, G: 0x57, B: 0x59, A: 0xff},
	{R: 0x76, G: 0xb7, B: 0xb2, A: 0xff},
	{R: 0x59, G: 0xa1, B: 0x4f, A: 0xff},
	{R: 0xed, G: 0xc9, B: 0x48, A: 0xff},
	{R: 0xb0, G: 0x7a, B: 0xa1, A: 0xff},
	{R: 0xff, G: 0x9d, B: 0xa7, A: 0xff},
}

// TaskColor is the color a task is drawn in.
func TaskColor(id kernel.TaskID) color.RGBA { return palette[int(id)%len(palette)] }

// Timeline paints the most recent window of task spans, one row per
// priority level, under a one-line status header.
type Timeline struct {
	d      *Display
	levels kernel.Priority
	window int32
}

// NewTimeline shows window ticks across the width of d.
func NewTimeline(d *Display, levels kernel.Priority, window int32) *Timeline {
	if window <= 0 {
		window = 1000
	}
	return &Timeline{d: d, levels: max(levels, 1), window: window}
}

// Draw repaints the pane with the spans overlapping the window ending at
// now.
func (tl *Timeline) Draw(spans []Span, now kernel.Tick, status string) {
	w, h := tl.d.Size()
	tl.d.FillRectangle(0, 0, w, h, timelineBG)
	tinyfont.WriteLine(tl.d, &proggy.TinySZ8pt7b, 2, 9, status, timelineFG)

	rowH := (int(h) - timelineHeader) / int(tl.levels)
	if rowH < 2 {
		return
	}
	plotW := int(w) - timelineLabel
	start := now - kernel.Tick(tl.window)
	rowY := func(p kernel.Priority) int { return timelineHeader + int(tl.levels-p)*rowH }

	for p := kernel.Priority(1); p <= tl.levels; p++ {
		y := rowY(p)
		tinyfont.WriteLine(tl.d, &proggy.TinySZ8pt7b, 2, int16(y+rowH/2+3), fmt.Sprintf("P%d", p), timelineFG)
		tl.d.FillRectangle(timelineLabel, int16(y+rowH-1), int16(plotW), 1, timelineGrid)
	}

	for _, s := range spans {
		if s.Priority == 0 || s.Priority > tl.levels || s.End.Before(start) {
			continue
		}
		from := s.Start.Sub(start)
		if from < 0 {
			from = 0
		}
		to := s.End.Sub(start)
		if to > tl.window {
			to = tl.window
		}
		x0 := timelineLabel + int(int64(from)*int64(plotW)/int64(tl.window))
		x1 := timelineLabel + int(int64(to)*int64(plotW)/int64(tl.window))
		if x1 <= x0 {
			x1 = x0 + 1
		}
		tl.d.FillRectangle(int16(x0), int16(rowY(s.Priority)+1), int16(x1-x0), int16(rowH-3), TaskColor(s.Task))
	}
	tl.d.Display()
}
