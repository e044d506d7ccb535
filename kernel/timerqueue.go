package kernel

import (
	"container/heap"
	"fmt"
)

// Entry is one pending deadline in a TimerQueue.
type Entry struct {
	Task     TaskID
	Deadline Tick
	Payload  any

	seq   uint64
	index int
}

// TimerQueue orders deadlines for at most one pending entry per task.
// Scheduling a task that already has an entry replaces it.
//
// Deadlines are compared wrap-aware, so all pending deadlines must lie
// within 2^31 ticks of each other. The queue is not safe for concurrent use;
// the dispatcher guards it with the timer interrupt's ceiling.
type TimerQueue struct {
	h      entryHeap
	byTask []*Entry
	seq    uint64
}

// NewTimerQueue returns a queue for task IDs 0..tasks-1.
func NewTimerQueue(tasks int) *TimerQueue {
	return &TimerQueue{
		h:      make(entryHeap, 0, tasks),
		byTask: make([]*Entry, tasks),
	}
}

// Schedule sets the task's next deadline, replacing any pending one.
// A deadline that has already passed is due at the next Poll.
func (q *TimerQueue) Schedule(id TaskID, deadline Tick, payload any) error {
	if int(id) >= len(q.byTask) {
		return fmt.Errorf("timer queue: task %d: %w", id, ErrUnknownTask)
	}
	q.seq++
	if e := q.byTask[id]; e != nil {
		e.Deadline = deadline
		e.Payload = payload
		e.seq = q.seq
		heap.Fix(&q.h, e.index)
		return nil
	}
	e := &Entry{Task: id, Deadline: deadline, Payload: payload, seq: q.seq}
	q.byTask[id] = e
	heap.Push(&q.h, e)
	return nil
}

// Poll removes and returns the earliest entry whose deadline is not after now.
// Callers poll until it reports false; due entries come out in deadline
// order, ties in scheduling order.
func (q *TimerQueue) Poll(now Tick) (Entry, bool) {
	if len(q.h) == 0 {
		return Entry{}, false
	}
	top := q.h[0]
	if top.Deadline.After(now) {
		return Entry{}, false
	}
	heap.Pop(&q.h)
	q.byTask[top.Task] = nil
	return *top, true
}

// Cancel drops the task's pending entry and returns its payload.
func (q *TimerQueue) Cancel(id TaskID) (any, bool) {
	if int(id) >= len(q.byTask) {
		return nil, false
	}
	e := q.byTask[id]
	if e == nil {
		return nil, false
	}
	heap.Remove(&q.h, e.index)
	q.byTask[id] = nil
	return e.Payload, true
}

// Next returns the earliest pending deadline.
func (q *TimerQueue) Next() (Tick, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].Deadline, true
}

// Pending returns the task's pending deadline, if any.
func (q *TimerQueue) Pending(id TaskID) (Tick, bool) {
	if int(id) >= len(q.byTask) || q.byTask[id] == nil {
		return 0, false
	}
	return q.byTask[id].Deadline, true
}

// Len returns the number of pending entries.
func (q *TimerQueue) Len() int { return len(q.h) }

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Deadline != b.Deadline {
		return a.Deadline.Before(b.Deadline)
	}
	return a.seq < b.seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
