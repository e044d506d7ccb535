package kernel

import "fmt"

// Context is handed to a task body for one invocation. It must not be kept
// after the body returns.
type Context struct {
	sys  *System
	t    *task // nil in the init hook
	item readyItem
}

// TaskID returns the running task.
func (c *Context) TaskID() TaskID {
	if c.t == nil {
		return initTask
	}
	return c.t.id
}

// Name returns the running task's name.
func (c *Context) Name() string {
	if c.t == nil {
		return "init"
	}
	return c.t.name
}

// Priority returns the task's static priority.
func (c *Context) Priority() Priority {
	if c.t == nil {
		return maskAll
	}
	return c.t.prio
}

// Payload returns the value passed to Spawn or ScheduleAt.
func (c *Context) Payload() any { return c.item.payload }

// Deadline returns the timer deadline that released this run. Periodic
// tasks reschedule from it to avoid drift.
func (c *Context) Deadline() (Tick, bool) { return c.item.deadline, c.item.timed }

// Now reads the monotonic clock.
func (c *Context) Now() Tick { return c.sys.clock.Now() }

func (c *Context) Clock() *Clock { return c.sys.clock }

// Spawn queues a software task. If it outranks the caller it runs before
// Spawn returns.
func (c *Context) Spawn(id TaskID, payload any) error {
	if err := c.sys.spawn(id, payload); err != nil {
		return err
	}
	c.sys.service()
	return nil
}

// ScheduleAt sets the task's next activation, replacing any pending one.
// Hardware-bound tasks get their source raised and take no payload.
func (c *Context) ScheduleAt(id TaskID, at Tick, payload any) error {
	return c.sys.schedule(id, at, payload)
}

// ScheduleAfter schedules the task d ticks from now.
func (c *Context) ScheduleAfter(id TaskID, d Duration, payload any) error {
	return c.sys.schedule(id, c.Now().Add(d), payload)
}

// Cancel drops the task's pending activation and returns its payload. An
// expiry the timer has already taken still runs.
func (c *Context) Cancel(id TaskID) (any, bool) { return c.sys.cancel(id) }

// Scheduled returns the task's pending timer deadline, if any.
func (c *Context) Scheduled(id TaskID) (Tick, bool) { return c.sys.tq.Pending(id) }

// Pend raises an interrupt source from inside a task.
func (c *Context) Pend(irq IRQ) error {
	if err := c.sys.raise(irq); err != nil {
		return err
	}
	c.sys.service()
	return nil
}

// PendLine flags a line of a shared vector from inside a task.
func (c *Context) PendLine(irq IRQ, line string) error {
	if err := c.sys.raiseLine(irq, line); err != nil {
		return err
	}
	c.sys.service()
	return nil
}

// Checkpoint lets pending higher-priority work run. Long task bodies call
// it between steps.
func (c *Context) Checkpoint() { c.sys.service() }

// Logf writes a line prefixed with the task name.
func (c *Context) Logf(format string, args ...any) {
	c.sys.log.WriteLineString(c.Name() + ": " + fmt.Sprintf(format, args...))
}
