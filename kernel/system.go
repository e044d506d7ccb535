package kernel

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// maskAll is above every task priority; the init hook runs at it.
const maskAll = MaxLevels + 1

const dueValid = 1 << 32

type lockFrame struct {
	id   uint64
	prev Priority
	task TaskID
}

// System is a configured scheduler. Tasks run on a single core goroutine,
// the one calling Run or RunPending. Pend, PendLine, Spawn, Tick, Enable and
// Disable are safe from any goroutine; they latch work and wake the core.
//
// A higher-priority task preempts at kernel calls made by the running task
// (Context methods, guard release) and between task bodies, running to
// completion on the same stack before control returns.
type System struct {
	log       Logger
	tracer    Tracer
	clock     *Clock
	levels    Priority
	tasks     []*task
	resources []*resourceState
	analysis  Analysis
	init      func(*Context)
	onPanic   func(PanicInfo)
	panicOnce sync.Once

	hw          nvic
	tq          *TimerQueue
	timerPrio   Priority
	dispatchers [MaxLevels + 1]IRQ
	nextDue     atomic.Uint64

	// Core state, touched only by the goroutine inside RunPending.
	booted  bool
	running Priority
	stack   []TaskID
	locks   []lockFrame
	lockSeq uint64

	active atomic.Bool
	wake   chan struct{}
	fault  atomic.Pointer[FaultError]

	dispatches  atomic.Uint64
	preemptions atomic.Uint64
	maxDepth    atomic.Int32
	timerDrops  atomic.Uint64
	spawnFull   atomic.Uint64
}

// Run services work until ctx is done or a task faults. It returns nil on
// cancellation and the *FaultError on a fault.
func (s *System) Run(ctx context.Context) error {
	for {
		if err := s.RunPending(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}
	}
}

// RunPending boots the system if needed, then runs every pending task until
// nothing is left. It is the single-step form of Run.
func (s *System) RunPending() error {
	return s.onCore(func() {
		s.boot()
		s.Tick()
		s.service()
	})
}

// Inspect runs fn as the init hook runs: every source masked and any
// resource lockable. It lets tools read shared state between steps and
// fails with ErrBusy while the core is running.
func (s *System) Inspect(fn func(*Context)) error {
	return s.onCore(func() {
		prev, base := s.running, len(s.locks)
		s.running = maskAll
		func() {
			defer s.catch(initTask, "inspect")
			fn(&Context{sys: s})
		}()
		s.locks = s.locks[:base]
		s.running = prev
	})
}

// onCore claims the core for fn and turns a task fault into a halt.
func (s *System) onCore(fn func()) (err error) {
	if f := s.fault.Load(); f != nil {
		return f
	}
	if !s.active.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.active.Store(false)
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		h, ok := v.(halt)
		if !ok {
			panic(v)
		}
		err = s.halt(h.f)
	}()
	fn()
	return nil
}

func (s *System) halt(f *FaultError) error {
	s.fault.Store(f)
	s.emit(Event{Kind: EvFault, Task: f.Task, Depth: len(s.stack)})
	s.logf("task %q faulted: %v", f.Name, f.Value)
	s.triggerPanic(f)
	return f
}

// Err returns the fault that halted the system, or nil.
func (s *System) Err() error {
	if f := s.fault.Load(); f != nil {
		return f
	}
	return nil
}

func (s *System) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pend raises an interrupt source. Raising a source that is already
// pending has no further effect.
func (s *System) Pend(irq IRQ) error {
	if s.fault.Load() != nil {
		return ErrHalted
	}
	if err := s.raise(irq); err != nil {
		return err
	}
	s.signal()
	return nil
}

// PendLine flags one line of a shared vector and raises the vector.
func (s *System) PendLine(irq IRQ, line string) error {
	if s.fault.Load() != nil {
		return ErrHalted
	}
	if err := s.raiseLine(irq, line); err != nil {
		return err
	}
	s.signal()
	return nil
}

// Spawn queues a software task with a payload.
func (s *System) Spawn(id TaskID, payload any) error {
	if s.fault.Load() != nil {
		return ErrHalted
	}
	if err := s.spawn(id, payload); err != nil {
		return err
	}
	s.signal()
	return nil
}

// Tick raises the timer interrupt if the earliest deadline has passed. The
// board's tick source calls it; RunPending calls it too.
func (s *System) Tick() {
	v := s.nextDue.Load()
	if v&dueValid == 0 || Tick(uint32(v)).After(s.clock.Now()) {
		return
	}
	if s.hw.isPending(TimerIRQ) {
		return
	}
	if err := s.raise(TimerIRQ); err == nil {
		s.signal()
	}
}

// Enable unmasks a source. A pending source runs once unmasked.
func (s *System) Enable(irq IRQ) error {
	if err := s.hw.setEnabled(irq, true); err != nil {
		return err
	}
	s.signal()
	return nil
}

// Disable masks a source. Arrivals still latch it pending.
func (s *System) Disable(irq IRQ) error {
	return s.hw.setEnabled(irq, false)
}

// Pending reports whether a source is latched.
func (s *System) Pending(irq IRQ) bool { return s.hw.isPending(irq) }

// Clock returns the system timebase.
func (s *System) Clock() *Clock { return s.clock }

// Levels returns the configured number of priority levels.
func (s *System) Levels() Priority { return s.levels }

// Analysis returns the static configuration report.
func (s *System) Analysis() Analysis { return s.analysis }

// Dispatcher returns the spare source serving software tasks at p.
func (s *System) Dispatcher(p Priority) (IRQ, bool) {
	if int(p) >= len(s.dispatchers) {
		return 0, false
	}
	irq := s.dispatchers[p]
	src, ok := s.hw.sources[irq]
	if !ok || src.kind != srcDispatcher || src.level != p {
		return 0, false
	}
	return irq, true
}

// TaskByName looks a task up by name.
func (s *System) TaskByName(name string) (TaskID, bool) {
	for _, t := range s.tasks {
		if t.name == name {
			return t.id, true
		}
	}
	return 0, false
}

// TaskName returns the task's name, or "" for an unknown ID.
func (s *System) TaskName(id TaskID) string {
	if int(id) < len(s.tasks) {
		return s.tasks[id].name
	}
	if id == initTask {
		return "init"
	}
	return ""
}

// Tasks describes every configured task.
func (s *System) Tasks() []TaskInfo {
	out := make([]TaskInfo, len(s.tasks))
	for i, t := range s.tasks {
		info := TaskInfo{ID: t.id, Name: t.name, Priority: t.prio, Binding: t.bind, Runs: t.runs.Load()}
		for _, st := range s.resources {
			if t.access&(1<<st.id) != 0 {
				info.Resources = append(info.Resources, st.name)
			}
		}
		out[i] = info
	}
	return out
}

// State reports the task's state. Running frames are read without
// synchronization, so call it from a task or while the core is idle.
func (s *System) State(id TaskID) TaskState {
	t, err := s.task(id)
	if err != nil {
		return TaskIdle
	}
	if t.running > 0 {
		return TaskRunning
	}
	if s.isPendingTask(t) {
		return TaskPending
	}
	return TaskIdle
}

func (s *System) isPendingTask(t *task) bool {
	if t.bind.IsSoftware() {
		return s.hw.queued(t) > 0
	}
	irq, _ := t.bind.IRQ()
	s.hw.mu.Lock()
	defer s.hw.mu.Unlock()
	src := s.hw.sources[irq]
	if src == nil || !src.pending {
		return false
	}
	if src.kind != srcVector {
		return true
	}
	for _, l := range src.lines {
		if l.task == t.id {
			return l.flagged
		}
	}
	return false
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Dispatches  uint64
	Preemptions uint64
	MaxDepth    int
	// TimerDrops counts expiries lost because the task's queue was full.
	TimerDrops uint64
	// SpawnFull counts spawns rejected with ErrQueueFull.
	SpawnFull uint64
	Sources   []SourceStats
}

func (s *System) Stats() Stats {
	src := s.hw.stats()
	slices.SortFunc(src, func(a, b SourceStats) int { return cmp.Compare(a.IRQ, b.IRQ) })
	return Stats{
		Dispatches:  s.dispatches.Load(),
		Preemptions: s.preemptions.Load(),
		MaxDepth:    int(s.maxDepth.Load()),
		TimerDrops:  s.timerDrops.Load(),
		SpawnFull:   s.spawnFull.Load(),
		Sources:     src,
	}
}

func (s *System) task(id TaskID) (*task, error) {
	if int(id) >= len(s.tasks) {
		return nil, fmt.Errorf("task %d: %w", id, ErrUnknownTask)
	}
	return s.tasks[id], nil
}
