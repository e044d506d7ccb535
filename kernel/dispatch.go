package kernel

import "fmt"

func (s *System) raise(irq IRQ) error {
	src, fresh, err := s.hw.pend(irq)
	if err != nil {
		return err
	}
	if fresh {
		s.emit(Event{Kind: EvPend, IRQ: irq, Priority: src.prio})
	}
	return nil
}

func (s *System) raiseLine(irq IRQ, line string) error {
	src, err := s.hw.pendLine(irq, line)
	if err != nil {
		return err
	}
	s.emit(Event{Kind: EvPend, IRQ: irq, Priority: src.prio})
	return nil
}

func (s *System) spawn(id TaskID, payload any) error {
	t, err := s.task(id)
	if err != nil {
		return err
	}
	if !t.bind.IsSoftware() {
		return fmt.Errorf("task %q: %w", t.name, ErrNotSpawnable)
	}
	if err := s.hw.push(t.prio, t, readyItem{task: id, payload: payload}); err != nil {
		s.spawnFull.Add(1)
		return err
	}
	s.emit(Event{Kind: EvSpawn, Task: id, Priority: t.prio})
	return s.raise(s.dispatchers[t.prio])
}

// activate makes a task pending on behalf of the timer.
func (s *System) activate(t *task, it readyItem) error {
	switch t.bind.kind {
	case bindHardware:
		return s.raise(t.bind.irq)
	case bindLine:
		return s.raiseLine(t.bind.irq, t.bind.line)
	}
	if err := s.hw.push(t.prio, t, it); err != nil {
		return err
	}
	return s.raise(s.dispatchers[t.prio])
}

func (s *System) boot() {
	if s.booted {
		return
	}
	s.booted = true
	if s.init == nil {
		return
	}
	s.running = maskAll
	func() {
		defer s.catch(initTask, "init")
		s.init(&Context{sys: s})
	}()
	s.locks = s.locks[:0]
	s.running = 0
}

// service runs every enabled pending source above the running priority,
// highest first. It is the preemption point.
func (s *System) service() {
	for {
		src := s.hw.next(s.running)
		if src == nil {
			return
		}
		s.enter(src)
	}
}

func (s *System) enter(src *source) {
	prev := s.running
	s.running = src.prio
	switch src.kind {
	case srcTask:
		s.runTask(s.tasks[src.task], src.irq, readyItem{task: src.task})
	case srcVector:
		for _, id := range s.hw.takeLines(src) {
			s.runTask(s.tasks[id], src.irq, readyItem{task: id})
			s.service()
		}
	case srcDispatcher:
		for {
			it, ok := s.hw.pop(src.level)
			if !ok {
				break
			}
			s.runTask(s.tasks[it.task], src.irq, it)
			s.service()
		}
	case srcTimer:
		s.expire()
	}
	s.running = prev
}

func (s *System) runTask(t *task, irq IRQ, it readyItem) {
	ctx := &Context{sys: s, t: t, item: it}
	base := len(s.locks)
	if len(s.stack) > 0 {
		s.preemptions.Add(1)
	}
	s.stack = append(s.stack, t.id)
	if d := int32(len(s.stack)); d > s.maxDepth.Load() {
		s.maxDepth.Store(d)
	}
	t.running++
	t.runs.Add(1)
	s.dispatches.Add(1)
	if s.tracer != nil {
		s.emit(Event{
			Kind:     EvStart,
			Task:     t.id,
			IRQ:      irq,
			Priority: t.prio,
			Running:  s.running,
			Pending:  s.hw.highest(),
			Depth:    len(s.stack),
		})
	}

	func() {
		defer s.catch(t.id, t.name)
		t.run(ctx)
	}()

	if len(s.locks) > base {
		s.logf("task %q returned holding %d guard(s)", t.name, len(s.locks)-base)
		s.running = s.locks[base].prev
		s.locks = s.locks[:base]
	}
	s.emit(Event{Kind: EvEnd, Task: t.id, IRQ: irq, Priority: t.prio, Running: s.running, Depth: len(s.stack)})
	t.running--
	s.stack = s.stack[:len(s.stack)-1]
}

// catch turns a panic in a task body into a fault that unwinds to the
// outermost RunPending.
func (s *System) catch(id TaskID, name string) {
	v := recover()
	if v == nil {
		return
	}
	if _, ok := v.(halt); ok {
		panic(v)
	}
	panic(halt{&FaultError{Task: id, Name: name, Value: v, Stack: captureStack()}})
}

func (s *System) lock(ctx *Context, st *resourceState) uint64 {
	if st.sys != s || (ctx.t != nil && ctx.t.access&(1<<st.id) == 0) {
		panic(fmt.Errorf("resource %q: %w", st.name, ErrUndeclaredResource))
	}
	s.lockSeq++
	f := lockFrame{id: s.lockSeq, prev: s.running, task: ctx.TaskID()}
	if st.ceiling > s.running {
		s.running = st.ceiling
	}
	s.locks = append(s.locks, f)
	s.emit(Event{Kind: EvLock, Task: f.task, Priority: st.ceiling, Running: s.running, Depth: len(s.stack), Resource: st.name})
	return f.id
}

func (s *System) unlock(st *resourceState, id uint64) {
	top := len(s.locks) - 1
	if top < 0 || s.locks[top].id != id {
		panic(fmt.Errorf("resource %q: %w", st.name, ErrLockOrder))
	}
	f := s.locks[top]
	s.locks = s.locks[:top]
	s.running = f.prev
	s.emit(Event{Kind: EvUnlock, Task: f.task, Priority: st.ceiling, Running: s.running, Depth: len(s.stack), Resource: st.name})
	s.service()
}

// critical runs fn with the running priority raised to at least ceiling.
func (s *System) critical(ceiling Priority, fn func()) {
	prev := s.running
	if ceiling > prev {
		s.running = ceiling
	}
	fn()
	s.running = prev
}

func (s *System) storeNextDue() {
	if at, ok := s.tq.Next(); ok {
		s.nextDue.Store(dueValid | uint64(at))
		return
	}
	s.nextDue.Store(0)
}

func (s *System) expire() {
	now := s.clock.Now()
	for {
		e, ok := s.tq.Poll(now)
		if !ok {
			break
		}
		t := s.tasks[e.Task]
		s.emit(Event{Kind: EvExpire, Task: t.id, Priority: t.prio, Running: s.running, Depth: len(s.stack)})
		it := readyItem{task: t.id, payload: e.Payload, deadline: e.Deadline, timed: true}
		if err := s.activate(t, it); err != nil {
			s.timerDrops.Add(1)
			s.emit(Event{Kind: EvDrop, Task: t.id, Priority: t.prio, Running: s.running})
			s.logf("expiry of %q at %d dropped: %v", t.name, e.Deadline, err)
		}
	}
	s.storeNextDue()
}

func (s *System) schedule(id TaskID, at Tick, payload any) error {
	t, err := s.task(id)
	if err != nil {
		return err
	}
	if !t.bind.IsSoftware() && payload != nil {
		return fmt.Errorf("task %q: payload: %w", t.name, ErrNotSpawnable)
	}
	s.critical(s.timerPrio, func() {
		err = s.tq.Schedule(id, at, payload)
		s.storeNextDue()
	})
	if err != nil {
		return err
	}
	s.emit(Event{Kind: EvSchedule, Task: id, Priority: t.prio, Running: s.running, Depth: len(s.stack)})
	if !at.After(s.clock.Now()) {
		if err := s.raise(TimerIRQ); err != nil {
			return err
		}
	}
	s.service()
	return nil
}

func (s *System) cancel(id TaskID) (payload any, ok bool) {
	s.critical(s.timerPrio, func() {
		payload, ok = s.tq.Cancel(id)
		s.storeNextDue()
	})
	return payload, ok
}
