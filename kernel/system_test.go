package kernel

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Trace(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func (l *lineLog) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.lines {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type harness struct {
	b     *Builder
	clock *ManualCounter
	trace *recorder
	log   *lineLog
	order []string
}

func newHarness(levels Priority) *harness {
	h := &harness{
		clock: NewManualCounter(1000, 0),
		trace: &recorder{},
		log:   &lineLog{},
	}
	h.b = NewBuilder(Config{
		Levels:  levels,
		Counter: h.clock,
		Logger:  h.log,
		Tracer:  h.trace,
	})
	return h
}

func (h *harness) note(s string) { h.order = append(h.order, s) }

func (h *harness) build(t *testing.T) *System {
	t.Helper()
	s, err := h.b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return s
}

func (h *harness) wantOrder(t *testing.T, want ...string) {
	t.Helper()
	if !reflect.DeepEqual(h.order, want) {
		t.Fatalf("order = %v, want %v", h.order, want)
	}
}

func mustRun(t *testing.T, s *System) {
	t.Helper()
	if err := s.RunPending(); err != nil {
		t.Fatalf("RunPending() error = %v", err)
	}
}

func TestHigherPriorityPreemptsAtKernelCall(t *testing.T) {
	h := newHarness(3)
	h.b.IRQ(1, "low")
	h.b.IRQ(2, "mid")
	h.b.IRQ(3, "high")
	h.b.Task(TaskConfig{Name: "low", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) {
		h.note("low:before")
		ctx.Pend(2)
		h.note("low:after")
	}})
	h.b.Task(TaskConfig{Name: "mid", Priority: 2, Bind: Hardware(2), Run: func(ctx *Context) {
		h.note("mid:before")
		ctx.Pend(3)
		h.note("mid:after")
	}})
	h.b.Task(TaskConfig{Name: "high", Priority: 3, Bind: Hardware(3), Run: func(ctx *Context) {
		h.note("high")
	}})
	s := h.build(t)

	s.Pend(1)
	mustRun(t, s)
	h.wantOrder(t, "low:before", "mid:before", "high", "mid:after", "low:after")
	if st := s.Stats(); st.MaxDepth != 3 || st.Preemptions != 2 {
		t.Fatalf("Stats() depth = %d, preemptions = %d, want 3, 2", st.MaxDepth, st.Preemptions)
	}
}

func TestEqualPriorityWaits(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "a")
	h.b.IRQ(2, "b")
	h.b.Task(TaskConfig{Name: "a", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) {
		ctx.Pend(2)
		h.note("a")
	}})
	h.b.Task(TaskConfig{Name: "b", Priority: 1, Bind: Hardware(2), Run: func(ctx *Context) {
		h.note("b")
	}})
	s := h.build(t)
	s.Pend(1)
	mustRun(t, s)
	h.wantOrder(t, "a", "b")
}

func TestLockHolderBlocksSharingTask(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "x")
	h.b.IRQ(2, "y")
	shared := NewResourceWith(h.b, "shared", 0)
	var bID TaskID
	var s *System
	h.b.Task(TaskConfig{Name: "A", Priority: 2, Bind: Hardware(1), Resources: []ResourceRef{shared}, Run: func(ctx *Context) {
		g := shared.Lock(ctx)
		*g.Value() = 1
		ctx.Pend(2)
		if got := s.State(bID); got != TaskPending {
			t.Errorf("State(B) while A holds the lock = %v, want pending", got)
		}
		h.note("A:locked")
		g.Release()
		h.note("A:released")
	}})
	bID = h.b.Task(TaskConfig{Name: "B", Priority: 1, Bind: Hardware(2), Resources: []ResourceRef{shared}, Run: func(ctx *Context) {
		g := shared.Lock(ctx)
		defer g.Release()
		h.note("B")
	}})
	s = h.build(t)

	s.Pend(1)
	mustRun(t, s)
	h.wantOrder(t, "A:locked", "A:released", "B")
	if got := s.State(bID); got != TaskIdle {
		t.Fatalf("State(B) = %v, want idle", got)
	}
}

func TestCeilingBlocksUnrelatedMiddleTask(t *testing.T) {
	h := newHarness(3)
	h.b.IRQ(1, "low")
	h.b.IRQ(2, "mid")
	h.b.IRQ(3, "high")
	res := NewResourceWith(h.b, "res", "")
	h.b.Task(TaskConfig{Name: "low", Priority: 1, Bind: Hardware(1), Resources: []ResourceRef{res}, Run: func(ctx *Context) {
		g := res.Lock(ctx)
		h.note("low:hold")
		ctx.Pend(2)
		h.note("low:still")
		g.Release()
		h.note("low:done")
	}})
	h.b.Task(TaskConfig{Name: "mid", Priority: 2, Bind: Hardware(2), Run: func(ctx *Context) {
		h.note("mid")
	}})
	h.b.Task(TaskConfig{Name: "high", Priority: 3, Bind: Hardware(3), Resources: []ResourceRef{res}, Run: func(ctx *Context) {}})
	s := h.build(t)

	if res.Ceiling() != 3 {
		t.Fatalf("Ceiling() = %d, want 3", res.Ceiling())
	}
	s.Pend(1)
	mustRun(t, s)
	h.wantOrder(t, "low:hold", "low:still", "mid", "low:done")
}

func TestArrivalOrderWithinLevel(t *testing.T) {
	h := newHarness(2)
	for i, name := range []string{"a", "b", "c"} {
		irq := IRQ(i + 1)
		n := name
		h.b.IRQ(irq, n)
		h.b.Task(TaskConfig{Name: n, Priority: 1, Bind: Hardware(irq), Run: func(ctx *Context) { h.note(n) }})
	}
	h.b.IRQ(9, "urgent")
	h.b.Task(TaskConfig{Name: "urgent", Priority: 2, Bind: Hardware(9), Run: func(ctx *Context) { h.note("urgent") }})
	s := h.build(t)

	s.Pend(3)
	s.Pend(1)
	s.Pend(3)
	s.Pend(9)
	s.Pend(2)
	mustRun(t, s)
	h.wantOrder(t, "urgent", "c", "a", "b")

	for _, src := range s.Stats().Sources {
		if src.IRQ == 3 && (src.Arrivals != 2 || src.Coalesced != 1) {
			t.Fatalf("irq 3 arrivals = %d, coalesced = %d, want 2, 1", src.Arrivals, src.Coalesced)
		}
	}
}

func TestSharedVectorScanOrder(t *testing.T) {
	h := newHarness(1)
	h.b.IRQ(10, "gpio")
	for _, l := range []struct {
		name  string
		order int
	}{{"b", 1}, {"a", 0}, {"c", 0}} {
		n := l.name
		h.b.Task(TaskConfig{Name: "btn-" + n, Priority: 1, Bind: Line(10, n, l.order), Run: func(ctx *Context) { h.note(n) }})
	}
	s := h.build(t)

	s.PendLine(10, "c")
	s.PendLine(10, "b")
	s.PendLine(10, "a")
	mustRun(t, s)
	h.wantOrder(t, "a", "c", "b")

	if err := s.PendLine(10, "z"); !errors.Is(err, ErrUnknownInterrupt) {
		t.Fatalf("PendLine(z) error = %v, want ErrUnknownInterrupt", err)
	}
}

func TestDisabledSourceStaysPending(t *testing.T) {
	h := newHarness(1)
	h.b.IRQ(1, "x")
	id := h.b.Task(TaskConfig{Name: "x", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) { h.note("x") }})
	s := h.build(t)

	s.Disable(1)
	s.Pend(1)
	mustRun(t, s)
	if len(h.order) != 0 || s.State(id) != TaskPending {
		t.Fatalf("disabled source ran: order = %v, state = %v", h.order, s.State(id))
	}
	s.Enable(1)
	mustRun(t, s)
	h.wantOrder(t, "x")

	if err := s.Pend(77); !errors.Is(err, ErrUnknownInterrupt) {
		t.Fatalf("Pend(77) error = %v, want ErrUnknownInterrupt", err)
	}
}

func TestSpawnPayloadsAndCapacity(t *testing.T) {
	h := newHarness(2)
	h.b.Spare(20, "swi0")
	h.b.IRQ(1, "hw")
	hw := h.b.Task(TaskConfig{Name: "hw", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) {}})
	sw := h.b.Task(TaskConfig{Name: "sw", Priority: 2, Capacity: 2, Run: func(ctx *Context) {
		h.note(ctx.Payload().(string))
	}})
	s := h.build(t)

	if err := s.Spawn(sw, "one"); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	s.Spawn(sw, "two")
	if err := s.Spawn(sw, "three"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Spawn() error = %v, want ErrQueueFull", err)
	}
	if err := s.Spawn(hw, nil); !errors.Is(err, ErrNotSpawnable) {
		t.Fatalf("Spawn(hardware) error = %v, want ErrNotSpawnable", err)
	}
	if irq, ok := s.Dispatcher(2); !ok || irq != 20 {
		t.Fatalf("Dispatcher(2) = %d, %v, want 20", irq, ok)
	}
	mustRun(t, s)
	h.wantOrder(t, "one", "two")
	if st := s.Stats(); st.SpawnFull != 1 {
		t.Fatalf("SpawnFull = %d, want 1", st.SpawnFull)
	}
}

func TestSpawnFromTaskPreempts(t *testing.T) {
	h := newHarness(2)
	h.b.Spare(20, "swi0")
	h.b.Spare(21, "swi1")
	var hi, lo TaskID
	hi = h.b.Task(TaskConfig{Name: "hi", Priority: 2, Run: func(ctx *Context) { h.note("hi") }})
	lo = h.b.Task(TaskConfig{Name: "lo", Priority: 1, Run: func(ctx *Context) {
		ctx.Spawn(hi, nil)
		h.note("lo")
	}})
	s := h.build(t)
	s.Spawn(lo, nil)
	mustRun(t, s)
	h.wantOrder(t, "hi", "lo")
}

func TestMissingSpareInterrupt(t *testing.T) {
	h := newHarness(3)
	h.b.Spare(20, "swi0")
	h.b.Task(TaskConfig{Name: "a", Priority: 1, Run: func(ctx *Context) {}})
	h.b.Task(TaskConfig{Name: "b", Priority: 3, Run: func(ctx *Context) {}})
	_, err := h.b.Build()
	if !errors.Is(err, ErrNoSpareInterrupt) || !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Build() error = %v, want ErrNoSpareInterrupt", err)
	}
}

func TestBuildReportsEveryProblem(t *testing.T) {
	b := NewBuilder(Config{Levels: 2})
	b.IRQ(1, "x")
	b.IRQ(1, "again")
	b.Task(TaskConfig{Name: "a", Priority: 3, Bind: Hardware(1), Run: func(*Context) {}})
	b.Task(TaskConfig{Name: "a", Priority: 1, Bind: Hardware(5), Run: func(*Context) {}})
	_, err := b.Build()
	for _, want := range []error{ErrNoClock, ErrUnknownInterrupt, ErrConfiguration} {
		if !errors.Is(err, want) {
			t.Fatalf("Build() error = %v, want it to include %v", err, want)
		}
	}
	for _, sub := range []string{"declared twice", "priority 3", "task \"a\" declared twice"} {
		if !strings.Contains(err.Error(), sub) {
			t.Fatalf("Build() error = %q, missing %q", err, sub)
		}
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build() succeeded")
	}
}

func TestTaskFaultHaltsSystem(t *testing.T) {
	h := newHarness(1)
	h.b.IRQ(1, "x")
	var info PanicInfo
	calls := 0
	h.b.cfg.PanicHandler = func(p PanicInfo) {
		calls++
		info = p
	}
	h.b.Task(TaskConfig{Name: "boom", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) {
		panic("sensor unplugged")
	}})
	s := h.build(t)

	s.Pend(1)
	err := s.RunPending()
	var fault *FaultError
	if !errors.As(err, &fault) || fault.Name != "boom" {
		t.Fatalf("RunPending() error = %v, want a fault in boom", err)
	}
	if !errors.Is(err, ErrTaskFault) || !errors.Is(err, ErrHalted) {
		t.Fatalf("fault error = %v, want ErrTaskFault and ErrHalted", err)
	}
	if calls != 1 || info.Task != "boom" || info.Value != "sensor unplugged" {
		t.Fatalf("panic handler calls = %d, info = %+v", calls, info)
	}
	if err := s.Pend(1); !errors.Is(err, ErrHalted) {
		t.Fatalf("Pend() after fault error = %v, want ErrHalted", err)
	}
	if err := s.RunPending(); err != fault {
		t.Fatalf("RunPending() after fault = %v, want the same fault", err)
	}
	if !h.log.contains("faulted") {
		t.Fatal("fault was not logged")
	}
}

func TestProcessPanicHandler(t *testing.T) {
	var global []string
	SetPanicHandler(func(p PanicInfo) { global = append(global, p.Task) })
	t.Cleanup(func() { SetPanicHandler(nil) })

	h := newHarness(1)
	h.b.IRQ(1, "x")
	h.b.Task(TaskConfig{Name: "boom", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) {
		panic("stack overflow")
	}})
	s := h.build(t)
	s.Pend(1)
	if err := s.RunPending(); !errors.Is(err, ErrTaskFault) {
		t.Fatalf("RunPending() error = %v, want ErrTaskFault", err)
	}
	s.RunPending()
	s.Inspect(func(*Context) {})
	if len(global) != 1 || global[0] != "boom" {
		t.Fatalf("process handler saw %v, want one fault in boom", global)
	}

	// A handler in Config takes precedence.
	h = newHarness(1)
	local := 0
	h.b.cfg.PanicHandler = func(PanicInfo) { local++ }
	s = h.build(t)
	s.Inspect(func(*Context) { panic("boom") })
	if local != 1 || len(global) != 1 {
		t.Fatalf("config handler calls = %d, process handler calls = %d, want 1 and 1", local, len(global))
	}
}

func TestNestedFaultUnwindsToCore(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "lo")
	h.b.IRQ(2, "hi")
	h.b.Task(TaskConfig{Name: "lo", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) {
		ctx.Pend(2)
		h.note("lo:after")
	}})
	h.b.Task(TaskConfig{Name: "hi", Priority: 2, Bind: Hardware(2), Run: func(ctx *Context) {
		panic(errors.New("bad frame"))
	}})
	s := h.build(t)
	s.Pend(1)
	err := s.RunPending()
	var fault *FaultError
	if !errors.As(err, &fault) || fault.Name != "hi" {
		t.Fatalf("RunPending() error = %v, want a fault in hi", err)
	}
	if len(h.order) != 0 {
		t.Fatalf("preempted task resumed after fault: %v", h.order)
	}
}

func TestResourceFaults(t *testing.T) {
	tests := []struct {
		name string
		body func(h *harness, a, b *Resource[int]) func(*Context)
		want error
	}{
		{
			name: "uninitialized",
			body: func(h *harness, a, b *Resource[int]) func(*Context) {
				return func(ctx *Context) { a.Lock(ctx) }
			},
			want: ErrUninitialized,
		},
		{
			name: "undeclared",
			body: func(h *harness, a, b *Resource[int]) func(*Context) {
				return func(ctx *Context) { b.Lock(ctx) }
			},
			want: ErrUndeclaredResource,
		},
		{
			name: "double init",
			body: func(h *harness, a, b *Resource[int]) func(*Context) {
				return func(ctx *Context) {
					a.Init(ctx, 1)
					a.Init(ctx, 2)
				}
			},
			want: ErrAlreadyInitialized,
		},
		{
			name: "out of order release",
			body: func(h *harness, a, b *Resource[int]) func(*Context) {
				return func(ctx *Context) {
					a.Init(ctx, 1)
					ga := a.Lock(ctx)
					a.Lock(ctx)
					ga.Release()
				}
			},
			want: ErrLockOrder,
		},
		{
			name: "use after release",
			body: func(h *harness, a, b *Resource[int]) func(*Context) {
				return func(ctx *Context) {
					a.Init(ctx, 1)
					g := a.Lock(ctx)
					g.Release()
					g.Release()
					*g.Value() = 3
				}
			},
			want: ErrGuardReleased,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(1)
			h.b.IRQ(1, "x")
			a := NewResource[int](h.b, "a")
			b := NewResourceWith(h.b, "b", 0)
			h.b.Task(TaskConfig{Name: "t", Priority: 1, Bind: Hardware(1), Resources: []ResourceRef{a}, Run: tt.body(h, a, b)})
			s := h.build(t)
			s.Pend(1)
			if err := s.RunPending(); !errors.Is(err, tt.want) {
				t.Fatalf("RunPending() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInitHookFillsResources(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "x")
	cfg := NewResource[map[string]int](h.b, "cfg")
	h.b.Init(func(ctx *Context) {
		cfg.Init(ctx, map[string]int{"gain": 3})
		ctx.Pend(1)
		h.note("init")
	})
	h.b.Task(TaskConfig{Name: "x", Priority: 2, Bind: Hardware(1), Resources: []ResourceRef{cfg}, Run: func(ctx *Context) {
		g := cfg.Lock(ctx)
		defer g.Release()
		if (*g.Value())["gain"] != 3 {
			t.Errorf("gain = %d, want 3", (*g.Value())["gain"])
		}
		h.note("x")
	}})
	s := h.build(t)
	mustRun(t, s)
	h.wantOrder(t, "init", "x")
	if !cfg.Initialized() {
		t.Fatal("Initialized() = false")
	}
}

func TestLeakedGuardIsReleased(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "leak")
	h.b.IRQ(2, "next")
	r := NewResourceWith(h.b, "r", 0)
	h.b.Task(TaskConfig{Name: "leak", Priority: 1, Bind: Hardware(1), Resources: []ResourceRef{r}, Run: func(ctx *Context) {
		r.Lock(ctx)
	}})
	h.b.Task(TaskConfig{Name: "next", Priority: 2, Bind: Hardware(2), Resources: []ResourceRef{r}, Run: func(ctx *Context) {
		g := r.Lock(ctx)
		*g.Value()++
		g.Release()
		h.note("next")
	}})
	s := h.build(t)
	s.Pend(1)
	mustRun(t, s)
	s.Pend(2)
	mustRun(t, s)
	h.wantOrder(t, "next")
	if !h.log.contains("holding 1 guard") {
		t.Fatal("leaked guard was not logged")
	}
}

func TestLockedCountIsExact(t *testing.T) {
	h := newHarness(3)
	counter := NewResourceWith(h.b, "counter", 0)
	const rounds = 50
	for i := 1; i <= 3; i++ {
		irq := IRQ(i)
		h.b.IRQ(irq, "src")
		h.b.Task(TaskConfig{Name: "inc" + string(rune('0'+i)), Priority: Priority(i), Bind: Hardware(irq), Resources: []ResourceRef{counter}, Run: func(ctx *Context) {
			g := counter.Lock(ctx)
			v := *g.Value()
			if irq < 3 {
				ctx.Pend(irq + 1)
			}
			ctx.Checkpoint()
			*g.Value() = v + 1
			g.Release()
		}})
	}
	s := h.build(t)
	for i := 0; i < rounds; i++ {
		s.Pend(1)
		mustRun(t, s)
	}
	for _, ti := range s.Tasks() {
		if ti.Runs != rounds {
			t.Fatalf("%s runs = %d, want %d", ti.Name, ti.Runs, rounds)
		}
	}
	if counter.v != 3*rounds {
		t.Fatalf("counter = %d, want %d", counter.v, 3*rounds)
	}
}

// TestRunningTaskHasHighestPriority drives random pends and locks and checks
// every dispatch against the pending set.
func TestRunningTaskHasHighestPriority(t *testing.T) {
	h := newHarness(4)
	rng := rand.New(rand.NewSource(7))
	remaining := 400
	res := []*Resource[int]{
		NewResourceWith(h.b, "r0", 0),
		NewResourceWith(h.b, "r1", 0),
	}
	const tasks = 8
	for i := 0; i < tasks; i++ {
		irq := IRQ(i + 1)
		h.b.IRQ(irq, "src")
		mine := res[i%2]
		h.b.Task(TaskConfig{
			Name:      "t" + string(rune('a'+i)),
			Priority:  Priority(i%4 + 1),
			Bind:      Hardware(irq),
			Resources: []ResourceRef{mine},
			Run: func(ctx *Context) {
				for step := 0; step < 3 && remaining > 0; step++ {
					remaining--
					switch rng.Intn(3) {
					case 0:
						ctx.Pend(IRQ(rng.Intn(tasks) + 1))
					case 1:
						g := mine.Lock(ctx)
						ctx.Pend(IRQ(rng.Intn(tasks) + 1))
						g.Release()
					default:
						ctx.Checkpoint()
					}
				}
			},
		})
	}
	s := h.build(t)
	for remaining > 0 {
		s.Pend(IRQ(rng.Intn(tasks) + 1))
		mustRun(t, s)
	}

	var stack []Priority
	starts := 0
	for _, e := range h.trace.snapshot() {
		switch e.Kind {
		case EvStart:
			starts++
			if e.Pending > e.Priority {
				t.Fatalf("task %d started at %d with %d pending", e.Task, e.Priority, e.Pending)
			}
			if n := len(stack); n > 0 && stack[n-1] >= e.Priority {
				t.Fatalf("task at %d preempted a task at %d", e.Priority, stack[n-1])
			}
			stack = append(stack, e.Priority)
		case EvEnd:
			stack = stack[:len(stack)-1]
		}
	}
	if starts == 0 {
		t.Fatal("no tasks ran")
	}
}

func TestTimerActivatesSoftwareTask(t *testing.T) {
	h := newHarness(2)
	h.b.Spare(20, "swi0")
	var periodic TaskID
	var deadlines []Tick
	periodic = h.b.Task(TaskConfig{Name: "periodic", Priority: 1, Run: func(ctx *Context) {
		at, ok := ctx.Deadline()
		if !ok {
			t.Errorf("Deadline() ok = false")
		}
		deadlines = append(deadlines, at)
		if ctx.Payload() != "tick" {
			t.Errorf("Payload() = %v, want tick", ctx.Payload())
		}
		ctx.ScheduleAt(periodic, at.Add(10), "tick")
	}})
	h.b.Init(func(ctx *Context) {
		ctx.ScheduleAfter(periodic, 10, "tick")
	})
	s := h.build(t)

	mustRun(t, s)
	if len(deadlines) != 0 {
		t.Fatalf("task ran before its deadline: %v", deadlines)
	}
	h.clock.Advance(10)
	mustRun(t, s)
	h.clock.Advance(35)
	mustRun(t, s)
	want := []Tick{10, 20, 30, 40}
	if !reflect.DeepEqual(deadlines, want) {
		t.Fatalf("deadlines = %v, want %v", deadlines, want)
	}
}

func TestTimerExpiryIntoFullQueueIsCounted(t *testing.T) {
	h := newHarness(2)
	h.b.Spare(20, "swi0")
	var sw TaskID
	sw = h.b.Task(TaskConfig{Name: "sw", Priority: 1, Run: func(ctx *Context) { h.note("sw") }})
	h.b.Init(func(ctx *Context) {
		ctx.Spawn(sw, nil)
		ctx.ScheduleAt(sw, ctx.Now(), nil)
	})
	s := h.build(t)
	mustRun(t, s)
	h.wantOrder(t, "sw")
	if st := s.Stats(); st.TimerDrops != 1 {
		t.Fatalf("TimerDrops = %d, want 1", st.TimerDrops)
	}
	if !h.log.contains("dropped") {
		t.Fatal("dropped expiry was not logged")
	}
}

func TestTimerPendsHardwareTask(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "adc")
	h.b.IRQ(2, "kick")
	var adc TaskID
	adc = h.b.Task(TaskConfig{Name: "adc", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) { h.note("adc") }})
	h.b.Task(TaskConfig{Name: "kick", Priority: 2, Bind: Hardware(2), Run: func(ctx *Context) {
		if err := ctx.ScheduleAfter(adc, 5, "x"); !errors.Is(err, ErrNotSpawnable) {
			t.Errorf("ScheduleAfter(payload) error = %v, want ErrNotSpawnable", err)
		}
		ctx.ScheduleAfter(adc, 5, nil)
		ctx.ScheduleAfter(adc, 8, nil)
	}})
	s := h.build(t)
	s.Pend(2)
	mustRun(t, s)
	h.clock.Advance(5)
	mustRun(t, s)
	if len(h.order) != 0 {
		t.Fatalf("replaced deadline fired: %v", h.order)
	}
	h.clock.Advance(3)
	s.Tick()
	if !s.Pending(TimerIRQ) {
		t.Fatal("Tick() did not raise the timer")
	}
	mustRun(t, s)
	h.wantOrder(t, "adc")
}

func TestCancelDropsActivation(t *testing.T) {
	h := newHarness(1)
	h.b.Spare(20, "swi0")
	var sw TaskID
	sw = h.b.Task(TaskConfig{Name: "sw", Priority: 1, Run: func(ctx *Context) { h.note("sw") }})
	h.b.Init(func(ctx *Context) {
		ctx.ScheduleAfter(sw, 5, 42)
		if p, ok := ctx.Cancel(sw); !ok || p != 42 {
			t.Errorf("Cancel() = %v, %v, want 42, true", p, ok)
		}
	})
	s := h.build(t)
	h.clock.Advance(10)
	mustRun(t, s)
	if len(h.order) != 0 {
		t.Fatalf("cancelled task ran: %v", h.order)
	}
}

func TestRunServesExternalPends(t *testing.T) {
	h := newHarness(1)
	h.b.IRQ(1, "x")
	done := make(chan struct{})
	h.b.Task(TaskConfig{Name: "x", Priority: 1, Bind: Hardware(1), Run: func(ctx *Context) { close(done) }})
	s := h.build(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	if err := s.Pend(1); err != nil {
		t.Fatalf("Pend() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}

func TestInspectReadsBetweenSteps(t *testing.T) {
	h := newHarness(2)
	h.b.IRQ(1, "inc")
	r := NewResourceWith(h.b, "count", 0)
	h.b.Task(TaskConfig{Name: "inc", Priority: 2, Bind: Hardware(1), Resources: []ResourceRef{r}, Run: func(ctx *Context) {
		g := r.Lock(ctx)
		*g.Value()++
		g.Release()
	}})
	s := h.build(t)
	s.Pend(1)
	mustRun(t, s)

	var got int
	err := s.Inspect(func(ctx *Context) {
		g := r.Lock(ctx)
		got = *g.Value()
		g.Release()
		ctx.Pend(1)
	})
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	// The pend from Inspect waits for the next step.
	if !s.Pending(1) {
		t.Fatal("Pending(1) = false after Inspect")
	}
	mustRun(t, s)
	s.Inspect(func(ctx *Context) {
		g := r.Lock(ctx)
		got = *g.Value()
		g.Release()
	})
	if got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestInspectFaultHalts(t *testing.T) {
	h := newHarness(1)
	s := h.build(t)
	err := s.Inspect(func(*Context) { panic("boom") })
	if !errors.Is(err, ErrTaskFault) {
		t.Fatalf("Inspect() error = %v, want ErrTaskFault", err)
	}
	if err := s.RunPending(); !errors.Is(err, ErrHalted) {
		t.Fatalf("RunPending() after fault error = %v, want ErrHalted", err)
	}
}
