package kernel

import (
	"cmp"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// Config holds the static parameters of a system.
type Config struct {
	// Levels is the number of task priority levels, 1..MaxLevels.
	Levels Priority
	// Counter is the monotonic timebase. It is required.
	Counter Counter

	Logger Logger
	Tracer Tracer

	// TimerPriority is the priority of the timer interrupt. Zero means Levels.
	TimerPriority Priority

	// PanicHandler overrides the process-wide handler set by SetPanicHandler.
	PanicHandler func(PanicInfo)
}

type irqDecl struct {
	irq  IRQ
	name string
}

// Builder collects the static configuration: interrupt sources, spare
// sources for software tasks, tasks and resources. It is not safe for
// concurrent use and can build one System.
type Builder struct {
	cfg       Config
	irqs      []irqDecl
	spares    []irqDecl
	seen      map[IRQ]bool
	tasks     []TaskConfig
	resources []*resourceState
	init      func(*Context)
	errs      []error
	built     bool
}

// NewBuilder starts a configuration.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, seen: map[IRQ]bool{}}
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf("kernel: "+format, args...))
}

func (b *Builder) declare(irq IRQ, name string) bool {
	if irq == TimerIRQ {
		b.fail("irq %d (%s) is reserved for the timer: %w", irq, name, ErrConfiguration)
		return false
	}
	if b.seen[irq] {
		b.fail("irq %d (%s) declared twice: %w", irq, name, ErrConfiguration)
		return false
	}
	b.seen[irq] = true
	return true
}

// IRQ declares a hardware interrupt source that tasks may bind to.
func (b *Builder) IRQ(irq IRQ, name string) {
	if b.declare(irq, name) {
		b.irqs = append(b.irqs, irqDecl{irq: irq, name: name})
	}
}

// Spare declares a source no hardware uses. Spares are handed out in
// declaration order, one per priority level that has software tasks.
func (b *Builder) Spare(irq IRQ, name string) {
	if b.declare(irq, name) {
		b.spares = append(b.spares, irqDecl{irq: irq, name: name})
	}
}

// Task declares a task and returns its ID. Errors are reported by Build.
func (b *Builder) Task(tc TaskConfig) TaskID {
	if len(b.tasks) >= maxTasks {
		b.fail("task %q: more than %d tasks: %w", tc.Name, maxTasks, ErrConfiguration)
		return TaskID(maxTasks - 1)
	}
	b.tasks = append(b.tasks, tc)
	return TaskID(len(b.tasks) - 1)
}

// Init sets the hook run once on the core before any task. It runs with
// every source masked and may lock any resource.
func (b *Builder) Init(fn func(*Context)) { b.init = fn }

func (b *Builder) addResource(st *resourceState, name string) {
	if len(b.resources) >= maxResources {
		b.fail("resource %q: more than %d resources: %w", name, maxResources, ErrConfiguration)
		return
	}
	st.id = len(b.resources)
	st.name = name
	st.b = b
	b.resources = append(b.resources, st)
}

// Build validates the configuration and returns a system ready to run.
// Every problem found is reported, joined.
func (b *Builder) Build() (*System, error) {
	if b.built {
		return nil, fmt.Errorf("kernel: builder already used: %w", ErrConfiguration)
	}
	b.built = true

	cfg := b.cfg
	if cfg.Levels == 0 || cfg.Levels > MaxLevels {
		b.fail("%d priority levels, want 1..%d: %w", cfg.Levels, MaxLevels, ErrConfiguration)
	}
	clock, err := NewClock(cfg.Counter)
	if err != nil {
		b.fail("%w", err)
	}
	timerPrio := cfg.TimerPriority
	if timerPrio == 0 {
		timerPrio = cfg.Levels
	}
	if timerPrio > cfg.Levels {
		b.fail("timer priority %d above %d levels: %w", timerPrio, cfg.Levels, ErrConfiguration)
	}

	sources := make(map[IRQ]*source, len(b.irqs)+len(b.spares)+1)
	for _, d := range b.irqs {
		sources[d.irq] = &source{irq: d.irq, name: d.name, kind: srcUnbound, prio: 1, enabled: true}
	}

	tasks := make([]*task, len(b.tasks))
	names := make(map[string]bool, len(b.tasks))
	for i, tc := range b.tasks {
		t := &task{
			id:       TaskID(i),
			name:     tc.Name,
			prio:     tc.Priority,
			bind:     tc.Bind,
			run:      tc.Run,
			capacity: tc.Capacity,
		}
		tasks[i] = t
		b.checkTask(t, names, cfg.Levels)
		for _, ref := range tc.Resources {
			if ref == nil {
				b.fail("task %q: nil resource: %w", t.name, ErrConfiguration)
				continue
			}
			st := ref.state()
			if st.b != b {
				b.fail("task %q: resource %q belongs to another builder: %w", t.name, st.name, ErrConfiguration)
				continue
			}
			t.access |= 1 << st.id
		}
		b.bindTask(t, sources)
	}

	var levels []Priority
	for _, t := range tasks {
		if t.bind.IsSoftware() && !slices.Contains(levels, t.prio) {
			levels = append(levels, t.prio)
		}
	}
	slices.Sort(levels)
	var dispatchers [MaxLevels + 1]IRQ
	for i, p := range levels {
		if i >= len(b.spares) {
			b.fail("priority %d: %w", p, ErrNoSpareInterrupt)
			continue
		}
		d := b.spares[i]
		dispatchers[p] = d.irq
		sources[d.irq] = &source{irq: d.irq, name: d.name, kind: srcDispatcher, prio: p, level: p, enabled: true}
	}
	sources[TimerIRQ] = &source{irq: TimerIRQ, name: "timer", kind: srcTimer, prio: timerPrio, enabled: true}

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	for _, src := range sources {
		if src.kind == srcVector {
			slices.SortStableFunc(src.lines, func(a, b vectorLine) int { return cmp.Compare(a.order, b.order) })
		}
	}

	an := analyze(tasks, b.resources)
	log := cfg.Logger
	if log == nil {
		log = discardLogger{}
	}
	s := &System{
		log:         log,
		tracer:      cfg.Tracer,
		clock:       clock,
		levels:      cfg.Levels,
		tasks:       tasks,
		resources:   b.resources,
		tq:          NewTimerQueue(len(tasks)),
		timerPrio:   timerPrio,
		dispatchers: dispatchers,
		init:        b.init,
		onPanic:     cfg.PanicHandler,
		analysis:    an,
		wake:        make(chan struct{}, 1),
	}
	s.hw.sources = sources
	s.hw.tasks = tasks
	for _, st := range b.resources {
		st.sys = s
	}
	for _, r := range an.Resources {
		s.logf("resource %s ceiling %d", r.Name, r.Ceiling)
	}
	s.logf("%d tasks, %d resources, %d levels, %d Hz", len(tasks), len(b.resources), cfg.Levels, clock.Hz())
	return s, nil
}

func (b *Builder) checkTask(t *task, names map[string]bool, levels Priority) {
	switch {
	case t.name == "":
		b.fail("task %d has no name: %w", t.id, ErrConfiguration)
	case names[t.name]:
		b.fail("task %q declared twice: %w", t.name, ErrConfiguration)
	}
	names[t.name] = true
	if t.prio == 0 || t.prio > levels {
		b.fail("task %q: priority %d, want 1..%d: %w", t.name, t.prio, levels, ErrConfiguration)
	}
	if t.run == nil {
		b.fail("task %q has no body: %w", t.name, ErrConfiguration)
	}
	if t.capacity < 0 {
		b.fail("task %q: negative capacity: %w", t.name, ErrConfiguration)
	}
	if t.capacity == 0 {
		t.capacity = 1
	}
}

func (b *Builder) bindTask(t *task, sources map[IRQ]*source) {
	irq, ok := t.bind.IRQ()
	if !ok {
		return
	}
	src := sources[irq]
	if src == nil {
		b.fail("task %q: irq %d: %w", t.name, irq, ErrUnknownInterrupt)
		return
	}
	switch t.bind.kind {
	case bindHardware:
		if src.kind != srcUnbound {
			b.fail("task %q: irq %d already bound: %w", t.name, irq, ErrConfiguration)
			return
		}
		src.kind = srcTask
		src.task = t.id
		src.prio = t.prio
	case bindLine:
		switch {
		case src.kind == srcUnbound:
			src.kind = srcVector
			src.prio = t.prio
		case src.kind != srcVector:
			b.fail("task %q: irq %d is not a shared vector: %w", t.name, irq, ErrConfiguration)
			return
		case src.prio != t.prio:
			b.fail("task %q: priority %d differs from vector irq %d at %d: %w", t.name, t.prio, irq, src.prio, ErrConfiguration)
			return
		}
		for _, l := range src.lines {
			if l.name == t.bind.line {
				b.fail("task %q: irq %d line %q bound twice: %w", t.name, irq, l.name, ErrConfiguration)
				return
			}
		}
		src.lines = append(src.lines, vectorLine{name: t.bind.line, task: t.id, order: t.bind.order})
	}
}
