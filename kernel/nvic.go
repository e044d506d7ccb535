package kernel

import (
	"fmt"
	"sync"

	"github.com/gammazero/deque"
)

type sourceKind uint8

const (
	srcUnbound sourceKind = iota
	srcTask
	srcVector
	srcDispatcher
	srcTimer
)

type vectorLine struct {
	name    string
	task    TaskID
	order   int
	flagged bool
}

type source struct {
	irq   IRQ
	name  string
	kind  sourceKind
	prio  Priority
	task  TaskID       // srcTask
	lines []vectorLine // srcVector, in service order
	level Priority     // srcDispatcher

	enabled   bool
	pending   bool
	arrivals  uint64
	coalesced uint64
}

type readyItem struct {
	task     TaskID
	payload  any
	deadline Tick
	timed    bool
}

// nvic models the interrupt controller: per-source enable and pending
// bits plus per-level arrival order. It is shared between the core and
// the goroutines that raise sources.
type nvic struct {
	mu      sync.Mutex
	sources map[IRQ]*source
	fifo    [MaxLevels + 1]deque.Deque[*source]
	ready   [MaxLevels + 1]deque.Deque[readyItem]
	tasks   []*task
}

func (n *nvic) lookup(irq IRQ) (*source, error) {
	src, ok := n.sources[irq]
	if !ok {
		return nil, fmt.Errorf("irq %d: %w", irq, ErrUnknownInterrupt)
	}
	return src, nil
}

// pend latches the source. It reports false when the source was already
// pending, in which case the arrivals coalesce.
func (n *nvic) pend(irq IRQ) (*source, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	src, err := n.lookup(irq)
	if err != nil {
		return nil, false, err
	}
	return src, n.latch(src), nil
}

func (n *nvic) latch(src *source) bool {
	src.arrivals++
	if src.pending {
		src.coalesced++
		return false
	}
	src.pending = true
	n.fifo[src.prio].PushBack(src)
	return true
}

func (n *nvic) pendLine(irq IRQ, line string) (*source, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	src, err := n.lookup(irq)
	if err != nil {
		return nil, err
	}
	if src.kind != srcVector {
		return nil, fmt.Errorf("irq %d has no line %q: %w", irq, line, ErrUnknownInterrupt)
	}
	for i := range src.lines {
		if src.lines[i].name == line {
			src.lines[i].flagged = true
			n.latch(src)
			return src, nil
		}
	}
	return nil, fmt.Errorf("irq %d line %q: %w", irq, line, ErrUnknownInterrupt)
}

// next removes the oldest enabled pending source above threshold, highest
// level first.
func (n *nvic) next(threshold Priority) *source {
	n.mu.Lock()
	defer n.mu.Unlock()
	for p := len(n.fifo) - 1; p > int(threshold); p-- {
		q := &n.fifo[p]
		i := q.Index(func(s *source) bool { return s.enabled })
		if i < 0 {
			continue
		}
		src := q.Remove(i)
		src.pending = false
		return src
	}
	return nil
}

// highest returns the top level with an enabled pending source, or zero.
func (n *nvic) highest() Priority {
	n.mu.Lock()
	defer n.mu.Unlock()
	for p := len(n.fifo) - 1; p > 0; p-- {
		if n.fifo[p].Index(func(s *source) bool { return s.enabled }) >= 0 {
			return Priority(p)
		}
	}
	return 0
}

// takeLines clears and returns the flagged lines of a vector in service order.
func (n *nvic) takeLines(src *source) []TaskID {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []TaskID
	for i := range src.lines {
		if src.lines[i].flagged {
			src.lines[i].flagged = false
			ids = append(ids, src.lines[i].task)
		}
	}
	return ids
}

func (n *nvic) setEnabled(irq IRQ, on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	src, err := n.lookup(irq)
	if err != nil {
		return err
	}
	src.enabled = on
	return nil
}

func (n *nvic) isPending(irq IRQ) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	src, ok := n.sources[irq]
	return ok && src.pending
}

func (n *nvic) push(level Priority, t *task, it readyItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.queued >= t.capacity {
		return fmt.Errorf("task %q: %w", t.name, ErrQueueFull)
	}
	t.queued++
	n.ready[level].PushBack(it)
	return nil
}

func (n *nvic) pop(level Priority) (readyItem, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q := &n.ready[level]
	if q.Len() == 0 {
		return readyItem{}, false
	}
	it := q.PopFront()
	n.tasks[it.task].queued--
	return it, true
}

func (n *nvic) queued(t *task) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return t.queued
}

// SourceStats reports per-source counters.
type SourceStats struct {
	IRQ       IRQ
	Name      string
	Priority  Priority
	Enabled   bool
	Pending   bool
	Arrivals  uint64
	Coalesced uint64
}

func (n *nvic) stats() []SourceStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SourceStats, 0, len(n.sources))
	for _, src := range n.sources {
		out = append(out, SourceStats{
			IRQ:       src.irq,
			Name:      src.name,
			Priority:  src.prio,
			Enabled:   src.enabled,
			Pending:   src.pending,
			Arrivals:  src.arrivals,
			Coalesced: src.coalesced,
		})
	}
	return out
}
