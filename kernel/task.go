package kernel

import (
	"fmt"
	"sync/atomic"
)

const (
	// MaxLevels is the largest number of priority levels a system may use.
	MaxLevels = 16

	maxTasks = 64
)

// Priority orders tasks; higher is more urgent. Level 0 is the idle level
// and never runs a task.
type Priority uint8

// TaskID identifies a task for the lifetime of a system.
type TaskID uint8

// IRQ is an interrupt source number.
type IRQ uint16

// TimerIRQ is the source raised by the monotonic timer's compare match.
// It is reserved and cannot be declared by users.
const TimerIRQ IRQ = 0xFFFF

type bindKind uint8

const (
	bindSoftware bindKind = iota
	bindHardware
	bindLine
)

// Binding says what makes a task pending.
type Binding struct {
	kind  bindKind
	irq   IRQ
	line  string
	order int
}

// Software binds a task to no hardware source: it runs when spawned or when
// its timer-queue deadline passes.
func Software() Binding { return Binding{} }

// Hardware binds a task to an interrupt source.
func Hardware(irq IRQ) Binding { return Binding{kind: bindHardware, irq: irq} }

// Line binds a task to one line of a vector shared by several lines. When
// the vector fires, flagged lines are serviced in ascending order, then in
// declaration order.
func Line(irq IRQ, line string, order int) Binding {
	return Binding{kind: bindLine, irq: irq, line: line, order: order}
}

// IsSoftware reports whether the task is dispatch-only.
func (b Binding) IsSoftware() bool { return b.kind == bindSoftware }

// IRQ returns the hardware source, if any.
func (b Binding) IRQ() (IRQ, bool) { return b.irq, b.kind != bindSoftware }

func (b Binding) String() string {
	switch b.kind {
	case bindHardware:
		return fmt.Sprintf("irq %d", b.irq)
	case bindLine:
		return fmt.Sprintf("irq %d line %s", b.irq, b.line)
	default:
		return "software"
	}
}

// TaskConfig declares a task at configuration time.
type TaskConfig struct {
	Name      string
	Priority  Priority
	Bind      Binding
	Resources []ResourceRef

	// Capacity bounds how many spawns of a software task may be queued.
	// Zero means one.
	Capacity int

	Run func(*Context)
}

// TaskState is the dispatcher's view of a task.
type TaskState uint8

const (
	TaskIdle TaskState = iota
	TaskPending
	TaskRunning
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	default:
		return "unknown"
	}
}

type task struct {
	id       TaskID
	name     string
	prio     Priority
	bind     Binding
	run      func(*Context)
	capacity int
	access   uint64 // bitmask of declared resource IDs

	queued  int // guarded by nvic.mu
	running int // frames on the core stack
	runs    atomic.Uint64
}

// TaskInfo describes a configured task.
type TaskInfo struct {
	ID        TaskID
	Name      string
	Priority  Priority
	Binding   Binding
	Resources []string
	Runs      uint64
}
