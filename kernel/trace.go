package kernel

// EventKind classifies a trace event.
type EventKind uint8

const (
	EvPend EventKind = iota
	EvStart
	EvEnd
	EvLock
	EvUnlock
	EvSpawn
	EvSchedule
	EvExpire
	EvDrop
	EvFault
)

func (k EventKind) String() string {
	switch k {
	case EvPend:
		return "pend"
	case EvStart:
		return "start"
	case EvEnd:
		return "end"
	case EvLock:
		return "lock"
	case EvUnlock:
		return "unlock"
	case EvSpawn:
		return "spawn"
	case EvSchedule:
		return "schedule"
	case EvExpire:
		return "expire"
	case EvDrop:
		return "drop"
	case EvFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Event is one dispatcher step.
type Event struct {
	At   Tick
	Kind EventKind
	Task TaskID
	IRQ  IRQ

	// Priority is the static priority of the task or source.
	Priority Priority
	// Running is the effective priority after the event.
	Running Priority
	// Pending is the highest enabled pending priority when a task starts.
	Pending Priority
	// Depth is the number of task frames on the core stack.
	Depth int

	Resource string
}

// Tracer observes dispatcher events. Pend events arrive from whatever
// goroutine raised the source, so implementations must be safe for
// concurrent use.
type Tracer interface {
	Trace(Event)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(Event)

func (f TracerFunc) Trace(e Event) { f(e) }

func (s *System) emit(e Event) {
	if s.tracer == nil {
		return
	}
	e.At = s.clock.Now()
	s.tracer.Trace(e)
}
