//go:build !tinygo

package hal

import (
	"sync"
	"time"
)

// hostTime counts milliseconds since creation. The tick stream starts on
// first use and delivers one sequence number per elapsed millisecond.
type hostTime struct {
	ch   chan uint64
	seq  uint64
	once sync.Once

	now  func() time.Time
	t0   time.Time
	last time.Time
	acc  time.Duration
}

func newHostTime(now func() time.Time) *hostTime {
	return &hostTime{ch: make(chan uint64, 1024), now: now, t0: now()}
}

func (t *hostTime) Ticks() <-chan uint64 {
	t.once.Do(func() {
		go func() {
			ticker := time.NewTicker(time.Millisecond)
			defer ticker.Stop()
			for range ticker.C {
				t.step()
			}
		}()
	})
	return t.ch
}

func (t *hostTime) Now() uint32 { return uint32(t.now().Sub(t.t0) / time.Millisecond) }

func (t *hostTime) Hz() uint32 { return 1000 }

func (t *hostTime) step() {
	now := t.now()
	if t.last.IsZero() {
		t.last = now
		t.stepN(1)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	const tickDur = time.Millisecond
	ticks := uint64(t.acc / tickDur)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % tickDur
	t.stepN(ticks)
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
