package trace

import (
	"errors"
	"fmt"

	"sparkrt/kernel"
)

// Span is one run of a task body, from start to return. A span that was
// preempted includes the time spent in the tasks nested inside it.
type Span struct {
	Task     kernel.TaskID
	Priority kernel.Priority
	IRQ      kernel.IRQ
	Start    kernel.Tick
	End      kernel.Tick
	Depth    int
	// Open marks a run still in progress when the trace ended.
	Open bool
}

// Ticks returns the span length.
func (s Span) Ticks() int32 { return s.End.Sub(s.Start) }

// Spans pairs start and end events by stack depth. Ends whose start was
// evicted from the recording are skipped.
func Spans(events []kernel.Event) []Span {
	var out []Span
	var stack []int
	var last kernel.Tick
	for _, e := range events {
		last = e.At
		switch e.Kind {
		case kernel.EvStart:
			stack = append(stack, len(out))
			out = append(out, Span{Task: e.Task, Priority: e.Priority, IRQ: e.IRQ, Start: e.At, Depth: e.Depth, Open: true})
		case kernel.EvEnd:
			if len(stack) == 0 {
				continue
			}
			i := stack[len(stack)-1]
			if out[i].Task != e.Task || out[i].Depth != e.Depth {
				continue
			}
			stack = stack[:len(stack)-1]
			out[i].End = e.At
			out[i].Open = false
		}
	}
	for _, i := range stack {
		out[i].End = last
	}
	return out
}

var ErrOrder = errors.New("dispatch order violated")

// Verify checks the recording against the dispatch rule: a task starts
// only when no enabled source above it is pending, and a task that starts
// on top of another outranks it. The first check is exact only when every
// source was raised from the core goroutine; a source raised concurrently
// can land between selection and start.
func Verify(events []kernel.Event) error {
	var errs []error
	var stack []kernel.Priority
	for i, e := range events {
		switch e.Kind {
		case kernel.EvStart:
			for len(stack) >= e.Depth && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if e.Pending > e.Priority {
				errs = append(errs, fmt.Errorf("trace: event %d: task %d at %d started with %d pending: %w", i, e.Task, e.Priority, e.Pending, ErrOrder))
			}
			if n := len(stack); n > 0 && n == e.Depth-1 && e.Priority <= stack[n-1] {
				errs = append(errs, fmt.Errorf("trace: event %d: task %d at %d preempted priority %d: %w", i, e.Task, e.Priority, stack[n-1], ErrOrder))
			}
			stack = append(stack, e.Priority)
		case kernel.EvEnd:
			for len(stack) >= e.Depth && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return errors.Join(errs...)
}
