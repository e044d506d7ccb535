// Package app builds a running system from a description: it declares the
// interrupt sources, resources, queues and tasks, binds each task to its
// behaviour and connects the board's peripherals to the interrupt sources.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sparkrt/config"
	"sparkrt/hal"
	"sparkrt/kernel"
	"sparkrt/trace"
)

// Options tunes New. Zero values pick the defaults.
type Options struct {
	// Counter replaces the board timebase, for simulated runs.
	Counter kernel.Counter
	// Tracer also receives every dispatcher event.
	Tracer kernel.Tracer
	// TraceLimit bounds the event recorder. Default 4096.
	TraceLimit int
	// Window is the timeline span shown on screen. Default one second.
	Window kernel.Duration
}

type byteQueue struct {
	q      *kernel.Queue
	p      *kernel.Producer
	c      *kernel.Consumer
	writer string
	reader string
}

type feed struct {
	irq   kernel.IRQ
	line  string
	queue *byteQueue
}

// App is a configured system and the glue to its board.
type App struct {
	h    hal.HAL
	cfg  *config.System
	sys  *kernel.System
	rec  *trace.Recorder
	log  *teeLogger
	opts Options

	irqs   map[string]kernel.IRQ
	ids    map[string]kernel.TaskID
	cells  map[string]*kernel.Resource[int64]
	queues map[string]*byteQueue
	rx     []feed

	fb       hal.Framebuffer
	split    int
	console  *trace.Console
	timeline *trace.Timeline
}

// New builds the system described by cfg on board h.
func New(h hal.HAL, cfg *config.System, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		h:      h,
		cfg:    cfg,
		opts:   opts,
		rec:    trace.NewRecorder(opts.TraceLimit),
		irqs:   map[string]kernel.IRQ{},
		ids:    map[string]kernel.TaskID{},
		cells:  map[string]*kernel.Resource[int64]{},
		queues: map[string]*byteQueue{},
		log:    &teeLogger{},
	}
	if l := h.Logger(); l != nil {
		a.log.add(l)
	}
	a.attachScreen()

	counter := opts.Counter
	if counter == nil {
		counter = h.Time()
	}
	var tracer kernel.Tracer = a.rec
	if opts.Tracer != nil {
		tracer = kernel.TracerFunc(func(e kernel.Event) {
			a.rec.Trace(e)
			opts.Tracer.Trace(e)
		})
	}
	b := kernel.NewBuilder(kernel.Config{
		Levels:        kernel.Priority(cfg.Levels),
		Counter:       counter,
		Logger:        a.log,
		Tracer:        tracer,
		TimerPriority: kernel.Priority(cfg.TimerPriority),
		PanicHandler:  a.onFault,
	})

	for _, in := range cfg.Interrupts {
		b.IRQ(kernel.IRQ(in.IRQ), in.Name)
		a.irqs[in.Name] = kernel.IRQ(in.IRQ)
	}
	for _, sp := range cfg.Spares {
		b.Spare(kernel.IRQ(sp.IRQ), sp.Name)
	}
	for _, r := range cfg.Resources {
		if r.Initial != nil {
			a.cells[r.Name] = kernel.NewResourceWith(b, r.Name, *r.Initial)
		} else {
			a.cells[r.Name] = kernel.NewResource[int64](b, r.Name)
		}
	}
	for _, q := range cfg.Queues {
		kq, err := kernel.NewQueue(q.Capacity)
		if err != nil {
			return nil, fmt.Errorf("app: queue %q: %w", q.Name, err)
		}
		p, c, err := kq.Split()
		if err != nil {
			return nil, fmt.Errorf("app: queue %q: %w", q.Name, err)
		}
		a.queues[q.Name] = &byteQueue{q: kq, p: p, c: c}
	}

	for _, t := range cfg.Tasks {
		body, err := a.behaviour(t)
		if err != nil {
			return nil, err
		}
		refs := make([]kernel.ResourceRef, 0, len(t.Resources))
		for _, name := range t.Resources {
			refs = append(refs, a.cells[name])
		}
		a.ids[t.Name] = b.Task(kernel.TaskConfig{
			Name:      t.Name,
			Priority:  kernel.Priority(t.Priority),
			Bind:      a.binding(t),
			Resources: refs,
			Capacity:  t.Capacity,
			Run:       body,
		})
	}
	b.Init(a.boot)

	sys, err := b.Build()
	if err != nil {
		return nil, err
	}
	a.sys = sys
	if a.fb != nil {
		window := opts.Window
		if window == 0 {
			window = sys.Clock().Ticks(time.Second)
		}
		a.timeline = trace.NewTimeline(trace.NewDisplay(a.fb, 0, 0, a.fb.Width(), a.split), sys.Levels(), int32(window))
	}
	return a, nil
}

func (a *App) binding(t config.Task) kernel.Binding {
	if t.IRQ == "" {
		return kernel.Software()
	}
	irq := a.irqs[t.IRQ]
	if t.Line != "" {
		return kernel.Line(irq, t.Line, t.Order)
	}
	return kernel.Hardware(irq)
}

// boot fills late-initialized resources and starts the periodic tasks.
func (a *App) boot(c *kernel.Context) {
	for _, r := range a.cfg.Resources {
		if r.Initial == nil {
			a.cells[r.Name].Init(c, 0)
		}
	}
	for _, t := range a.cfg.Tasks {
		if t.Period > 0 {
			if err := c.ScheduleAfter(a.ids[t.Name], c.Clock().Ticks(t.Period.Std()), nil); err != nil {
				panic(fmt.Errorf("start %q: %w", t.Name, err))
			}
		}
	}
	a.log.WriteLineString(fmt.Sprintf("app: %s up, %d tasks", a.cfg.Name, len(a.cfg.Tasks)))
}

// System returns the scheduler.
func (a *App) System() *kernel.System { return a.sys }

// Recorder returns the event recorder.
func (a *App) Recorder() *trace.Recorder { return a.rec }

// Value reads a resource between steps of the core. It fails with
// kernel.ErrBusy while a task is running.
func (a *App) Value(name string) (int64, error) {
	r, ok := a.cells[name]
	if !ok {
		return 0, fmt.Errorf("app: resource %q: %w", name, ErrUnknownResource)
	}
	var (
		v     int64
		ready bool
	)
	err := a.sys.Inspect(func(c *kernel.Context) {
		if ready = r.Initialized(); ready {
			g := r.Lock(c)
			v = *g.Value()
			g.Release()
		}
	})
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, fmt.Errorf("app: resource %q: %w", name, kernel.ErrUninitialized)
	}
	return v, nil
}

// Run serves the board and runs the core until ctx is done or a task
// faults.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Serve(ctx) })
	g.Go(func() error {
		if err := a.sys.Run(ctx); err != nil {
			return err
		}
		return ctx.Err()
	})
	return g.Wait()
}

// Press raises whatever the description binds to key.
func (a *App) Press(key string) error {
	for _, k := range a.cfg.Keys() {
		if k.Key != key {
			continue
		}
		if k.Line != "" {
			return a.sys.PendLine(kernel.IRQ(k.IRQ), k.Line)
		}
		return a.sys.Pend(kernel.IRQ(k.IRQ))
	}
	return fmt.Errorf("app: key %q: %w", key, ErrUnboundKey)
}

// Receive hands serial bytes to the receive queue and raises its source.
// Bytes that do not fit are dropped, counted in Dropped and reported as an
// error wrapping kernel.ErrInsufficientSpace alongside the number accepted.
// It must be called from one goroutine at a time.
func (a *App) Receive(b []byte) (int, error) {
	if len(a.rx) == 0 {
		return 0, ErrNoReceiver
	}
	f := a.rx[0]
	p := f.queue.p
	n := 0
	for n < len(b) {
		want := min(len(b)-n, p.Contiguous())
		if want == 0 {
			break
		}
		g, err := p.Grant(want)
		if err != nil {
			break
		}
		k := copy(g.Bytes(), b[n:])
		if err := g.Commit(k); err != nil {
			return n, fmt.Errorf("app: serial: %w", err)
		}
		n += k
	}
	var lost error
	if n < len(b) {
		// A failed grant is what Dropped counts.
		g, err := p.Grant(min(len(b)-n, f.queue.q.Cap()))
		if err == nil {
			g.Commit(0)
			err = kernel.ErrInsufficientSpace
		}
		lost = fmt.Errorf("app: serial: %d of %d bytes dropped: %w", len(b)-n, len(b), err)
	}
	if n > 0 {
		var err error
		if f.line != "" {
			err = a.sys.PendLine(f.irq, f.line)
		} else {
			err = a.sys.Pend(f.irq)
		}
		if err != nil {
			return n, err
		}
	}
	return n, lost
}

// Dropped returns how many writes the byte queues refused for lack of space.
func (a *App) Dropped() uint64 {
	var n uint64
	for _, q := range a.queues {
		n += q.p.Dropped()
	}
	return n
}

type teeLogger struct {
	ls []hal.Logger
}

func (t *teeLogger) add(l hal.Logger) { t.ls = append(t.ls, l) }

func (t *teeLogger) WriteLineString(s string) {
	for _, l := range t.ls {
		l.WriteLineString(s)
	}
}

func (t *teeLogger) WriteLineBytes(b []byte) {
	for _, l := range t.ls {
		l.WriteLineBytes(b)
	}
}
