package app

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"sparkrt/config"
	"sparkrt/hal"
	"sparkrt/kernel"
)

type behaviourFunc func(a *App, t config.Task) (func(*kernel.Context), error)

var behaviours = map[string]behaviourFunc{
	"toggle":    toggle,
	"serial-rx": serialRx,
	"sampler":   sampler,
	"filter":    filter,
	"heartbeat": heartbeat,
}

// Behaviours lists the names a task description may use.
func Behaviours() []string {
	names := maps.Keys(behaviours)
	slices.Sort(names)
	return names
}

func (a *App) behaviour(t config.Task) (func(*kernel.Context), error) {
	mk, ok := behaviours[t.Behaviour]
	if !ok {
		return nil, fmt.Errorf("app: task %q: %q: %w", t.Name, t.Behaviour, ErrBehaviour)
	}
	body, err := mk(a, t)
	if err != nil {
		return nil, fmt.Errorf("app: task %q: %w", t.Name, err)
	}
	if t.Period > 0 {
		body = periodic(t, body)
	}
	return body, nil
}

// periodic re-arms the timer from the deadline that released the run, so
// the period does not drift with dispatch latency.
func periodic(t config.Task, body func(*kernel.Context)) func(*kernel.Context) {
	return func(c *kernel.Context) {
		body(c)
		at, ok := c.Deadline()
		if !ok {
			return
		}
		next := at.Add(c.Clock().Ticks(t.Period.Std()))
		if err := c.ScheduleAt(c.TaskID(), next, nil); err != nil {
			c.Logf("reschedule: %v", err)
		}
	}
}

// queue claims one end of the task's byte queue.
func (a *App) queue(t config.Task, write bool) (*byteQueue, error) {
	q, ok := a.queues[t.Queue]
	if !ok {
		return nil, fmt.Errorf("%s needs a queue: %w", t.Behaviour, ErrBehaviour)
	}
	end, side := &q.reader, "read"
	if write {
		end, side = &q.writer, "written"
	}
	if *end != "" {
		return nil, fmt.Errorf("queue %q already %s by %q: %w", t.Queue, side, *end, ErrBehaviour)
	}
	*end = t.Name
	return q, nil
}

func (a *App) resources(t config.Task) []*kernel.Resource[int64] {
	rs := make([]*kernel.Resource[int64], 0, len(t.Resources))
	for _, name := range t.Resources {
		rs = append(rs, a.cells[name])
	}
	return rs
}

// toggle flips its first resource and mirrors it on the LED.
func toggle(a *App, t config.Task) (func(*kernel.Context), error) {
	if len(t.Resources) == 0 {
		return nil, fmt.Errorf("toggle needs a resource: %w", ErrBehaviour)
	}
	state := a.cells[t.Resources[0]]
	led := a.h.LED()
	return func(c *kernel.Context) {
		g := state.Lock(c)
		v := g.Value()
		*v ^= 1
		on := *v != 0
		if led != nil {
			if on {
				led.High()
			} else {
				led.Low()
			}
		}
		g.Release()
		c.Logf("%s=%d", t.Resources[0], btoi(on))
	}, nil
}

// serialRx drains bytes handed over by Receive, echoes them and counts
// them into its first resource.
func serialRx(a *App, t config.Task) (func(*kernel.Context), error) {
	if t.IRQ == "" {
		return nil, fmt.Errorf("serial-rx needs an interrupt: %w", ErrBehaviour)
	}
	q, err := a.queue(t, false)
	if err != nil {
		return nil, err
	}
	if q.writer != "" {
		return nil, fmt.Errorf("queue %q already written by %q: %w", t.Queue, q.writer, ErrBehaviour)
	}
	q.writer = "serial"
	a.rx = append(a.rx, feed{irq: a.irqs[t.IRQ], line: t.Line, queue: q})

	var count *kernel.Resource[int64]
	if len(t.Resources) > 0 {
		count = a.cells[t.Resources[0]]
	}
	out := a.h.Serial()
	return func(c *kernel.Context) {
		total := 0
		for {
			r, err := q.c.Read()
			if err != nil {
				break
			}
			b := r.Bytes()
			if out != nil {
				if _, err := out.Write(b); err != nil && !errors.Is(err, hal.ErrNotImplemented) {
					c.Logf("echo: %v", err)
				}
			}
			c.Logf("rx %q", b)
			total += len(b)
			r.Release(len(b))
		}
		if total == 0 || count == nil {
			return
		}
		g := count.Lock(c)
		*g.Value() += int64(total)
		g.Release()
	}, nil
}

// sampler reads one ADC channel into its queue as little-endian uint16
// records and spawns the task named by notify.
func sampler(a *App, t config.Task) (func(*kernel.Context), error) {
	q, err := a.queue(t, true)
	if err != nil {
		return nil, err
	}
	adc := a.h.ADC()
	if adc == nil {
		return nil, fmt.Errorf("sampler: %w", hal.ErrNotImplemented)
	}
	if t.Channel < 0 || t.Channel >= adc.Channels() {
		return nil, fmt.Errorf("sampler: channel %d of %d: %w", t.Channel, adc.Channels(), ErrBehaviour)
	}
	return func(c *kernel.Context) {
		v, err := adc.Read(t.Channel)
		if err != nil {
			c.Logf("adc: %v", err)
			return
		}
		var rec [2]byte
		binary.LittleEndian.PutUint16(rec[:], v)
		if q.p.Write(rec[:]) != nil {
			// Counted by the producer.
			return
		}
		if t.Notify == "" {
			return
		}
		id, ok := a.ids[t.Notify]
		if !ok {
			c.Logf("notify %q: %v", t.Notify, ErrUnknownTask)
			return
		}
		if err := c.Spawn(id, nil); err != nil && !errors.Is(err, kernel.ErrQueueFull) {
			c.Logf("notify %q: %v", t.Notify, err)
		}
	}, nil
}

// filter smooths the sampler's records and drives the PWM duty from the
// result, publishing it in its first resource.
func filter(a *App, t config.Task) (func(*kernel.Context), error) {
	q, err := a.queue(t, false)
	if err != nil {
		return nil, err
	}
	var duty *kernel.Resource[int64]
	if len(t.Resources) > 0 {
		duty = a.cells[t.Resources[0]]
	}
	pwm := a.h.PWM()
	ema := int64(-1)
	return func(c *kernel.Context) {
		var rec [2]byte
		n := 0
		for {
			k, err := q.c.ReadInto(rec[:])
			if err != nil || k < len(rec) {
				break
			}
			x := int64(binary.LittleEndian.Uint16(rec[:]))
			if ema < 0 {
				ema = x
			} else {
				ema += (x - ema) / 8
			}
			n++
		}
		if n == 0 {
			return
		}
		if duty != nil {
			g := duty.Lock(c)
			*g.Value() = ema
			g.Release()
		}
		if pwm != nil {
			if err := pwm.SetDuty(uint16(ema)); err != nil {
				c.Logf("pwm: %v", err)
			}
		}
	}, nil
}

// heartbeat holds every resource it declares at once and reports them
// along with the dispatcher counters.
func heartbeat(a *App, t config.Task) (func(*kernel.Context), error) {
	cells := a.resources(t)
	return func(c *kernel.Context) {
		guards := make([]*kernel.Guard[int64], 0, len(cells))
		parts := make([]string, 0, len(cells)+1)
		for i, r := range cells {
			if !r.Initialized() {
				parts = append(parts, t.Resources[i]+"=-")
				continue
			}
			g := r.Lock(c)
			guards = append(guards, g)
			parts = append(parts, fmt.Sprintf("%s=%d", t.Resources[i], *g.Value()))
		}
		for i := len(guards) - 1; i >= 0; i-- {
			guards[i].Release()
		}
		st := a.sys.Stats()
		parts = append(parts, fmt.Sprintf("disp=%d pre=%d depth=%d", st.Dispatches, st.Preemptions, st.MaxDepth))
		c.Logf("%s", strings.Join(parts, " "))
	}, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
