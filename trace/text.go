package trace

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"sparkrt/kernel"
)

// Names resolves task IDs for display. *kernel.System's TaskName fits.
type Names func(kernel.TaskID) string

// Dump writes one line per event. Task bodies are indented by nesting.
func Dump(w io.Writer, events []kernel.Event, names Names) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintln(tw, "tick\tevent\ttask\tprio\trun\tdetail")
	for _, e := range events {
		var task, detail string
		switch e.Kind {
		case kernel.EvPend:
			task = "-"
			detail = fmt.Sprintf("irq %d", e.IRQ)
		case kernel.EvStart, kernel.EvEnd:
			task = strings.Repeat("  ", max(e.Depth-1, 0)) + name(names, e.Task)
			detail = fmt.Sprintf("irq %d", e.IRQ)
			if e.Kind == kernel.EvStart && e.Pending > 0 {
				detail += fmt.Sprintf(" pending %d", e.Pending)
			}
		case kernel.EvLock, kernel.EvUnlock:
			task = name(names, e.Task)
			detail = fmt.Sprintf("%s ceiling %d", e.Resource, e.Priority)
		default:
			task = name(names, e.Task)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", e.At, e.Kind, task, e.Priority, e.Running, detail)
	}
	return tw.Flush()
}

func name(names Names, id kernel.TaskID) string {
	if names != nil {
		if n := names(id); n != "" {
			return n
		}
	}
	return fmt.Sprintf("#%d", id)
}
