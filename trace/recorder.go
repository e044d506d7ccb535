// Package trace records dispatcher events and turns them into spans,
// text, images and an on-screen timeline.
package trace

import (
	"sync"

	"github.com/gammazero/deque"

	"sparkrt/kernel"
)

// Recorder keeps the most recent events. It is a kernel.Tracer.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	events  deque.Deque[kernel.Event]
	evicted uint64
}

// NewRecorder keeps at most limit events; older ones are evicted.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 4096
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Trace(e kernel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events.Len() == r.limit {
		r.events.PopFront()
		r.evicted++
	}
	r.events.PushBack(e)
}

// Events returns a copy of the retained events, oldest first.
func (r *Recorder) Events() []kernel.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kernel.Event, r.events.Len())
	for i := range out {
		out[i] = r.events.At(i)
	}
	return out
}

// Evicted returns how many events were pushed out by newer ones.
func (r *Recorder) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events.Clear()
	r.evicted = 0
}
