package app

import (
	"fmt"

	"sparkrt/hal"
	"sparkrt/trace"
)

// attachScreen splits the framebuffer into a timeline pane on top and a
// console pane below, and routes the log to the console.
func (a *App) attachScreen() {
	d := a.h.Display()
	if d == nil {
		return
	}
	fb := d.Framebuffer()
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 || fb.Buffer() == nil {
		return
	}
	a.fb = fb
	a.split = fb.Height() * 3 / 5
	a.console = trace.NewConsole(trace.NewDisplay(fb, 0, a.split, fb.Width(), fb.Height()-a.split))
	a.log.add(a.console)
}

// Frame repaints the timeline. The window runner calls it once per frame;
// after a fault the fault screen is left alone.
func (a *App) Frame() error {
	if a.timeline == nil || a.sys.Err() != nil {
		return nil
	}
	st := a.sys.Stats()
	status := fmt.Sprintf("%s t=%d disp=%d pre=%d depth=%d drop=%d",
		a.cfg.Name, a.sys.Clock().Now(), st.Dispatches, st.Preemptions, st.MaxDepth, st.TimerDrops+st.SpawnFull)
	a.timeline.Draw(trace.Spans(a.rec.Events()), a.sys.Clock().Now(), status)
	return nil
}
