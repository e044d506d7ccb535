package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"sparkrt/kernel"
	"sparkrt/trace"
)

const (
	faultLineHeight = 10
	faultBaseline   = 7
	faultGlyphWidth = 6
)

var (
	faultBG = color.RGBA{R: 0x80, G: 0, B: 0, A: 0xff}
	faultFG = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// onFault reports the task that halted the system on the log and paints
// it over the whole screen. It runs on the core and returns.
func (a *App) onFault(info kernel.PanicInfo) {
	lines := []string{
		"FAULT",
		fmt.Sprintf("task: %s (%d)", info.Task, info.TaskID),
		fmt.Sprintf("panic: %v", info.Value),
	}
	if len(info.Stack) > 0 {
		lines = append(lines, "stack:")
		for _, l := range strings.Split(string(info.Stack), "\n") {
			if l != "" {
				lines = append(lines, l)
			}
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}

	if l := a.h.Logger(); l != nil {
		for _, s := range lines {
			l.WriteLineString(s)
		}
	}
	if a.fb == nil {
		return
	}

	d := trace.NewDisplay(a.fb, 0, 0, a.fb.Width(), a.fb.Height())
	w, h := d.Size()
	d.FillRectangle(0, 0, w, h, faultBG)
	cols := max(int(w)/faultGlyphWidth, 1)
	y := int16(0)
	for _, s := range lines {
		for s != "" && y+faultLineHeight <= h {
			chunk, rest := takeRunes(s, cols)
			tinyfont.WriteLine(d, &proggy.TinySZ8pt7b, 2, y+faultBaseline, chunk, faultFG)
			y += faultLineHeight
			s = strings.TrimLeft(rest, " \t")
		}
	}
	d.Display()
}

// takeRunes splits s after n runes.
func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 {
		return "", s
	}
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
