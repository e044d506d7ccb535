package kernel

import (
	"errors"
	"testing"
)

func TestTimerQueuePollOnce(t *testing.T) {
	q := NewTimerQueue(4)
	if err := q.Schedule(2, 100, "x"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if _, ok := q.Poll(99); ok {
		t.Fatal("Poll(99) returned an entry before its deadline")
	}
	e, ok := q.Poll(100)
	if !ok || e.Task != 2 || e.Payload != "x" {
		t.Fatalf("Poll(100) = %+v, %v, want task 2 payload x", e, ok)
	}
	if _, ok := q.Poll(200); ok {
		t.Fatal("Poll(200) returned the task twice")
	}
}

func TestTimerQueueRescheduleReplaces(t *testing.T) {
	q := NewTimerQueue(4)
	q.Schedule(1, 50, nil)
	q.Schedule(1, 80, nil)
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	if _, ok := q.Poll(60); ok {
		t.Fatal("Poll(60) fired the replaced deadline")
	}
	if _, ok := q.Poll(80); !ok {
		t.Fatal("Poll(80) = false, want the rescheduled entry")
	}
	if _, ok := q.Poll(80); ok {
		t.Fatal("Poll(80) returned a duplicate")
	}
}

func TestTimerQueueOrder(t *testing.T) {
	q := NewTimerQueue(8)
	q.Schedule(0, 30, nil)
	q.Schedule(1, 10, nil)
	q.Schedule(2, 20, nil)
	q.Schedule(3, 10, nil)
	q.Schedule(4, 10, nil)
	q.Schedule(3, 10, nil) // rescheduling moves 3 behind 4

	want := []TaskID{1, 4, 3, 2, 0}
	for i, id := range want {
		e, ok := q.Poll(100)
		if !ok || e.Task != id {
			t.Fatalf("Poll() #%d = %d, %v, want %d", i, e.Task, ok, id)
		}
	}
}

func TestTimerQueuePastDeadline(t *testing.T) {
	q := NewTimerQueue(2)
	q.Schedule(0, 5, nil)
	if e, ok := q.Poll(1000); !ok || e.Deadline != 5 {
		t.Fatalf("Poll() = %+v, %v, want past deadline 5", e, ok)
	}
}

func TestTimerQueueWrap(t *testing.T) {
	q := NewTimerQueue(2)
	q.Schedule(0, Tick(0xFFFFFFF0).Add(0x20), nil) // wraps to 0x10
	q.Schedule(1, 0xFFFFFFF8, nil)

	if next, _ := q.Next(); next != 0xFFFFFFF8 {
		t.Fatalf("Next() = %#x, want 0xfffffff8", next)
	}
	if e, ok := q.Poll(0xFFFFFFFF); !ok || e.Task != 1 {
		t.Fatalf("Poll(0xffffffff) = %+v, %v, want task 1", e, ok)
	}
	if _, ok := q.Poll(0xFFFFFFFF); ok {
		t.Fatal("Poll(0xffffffff) fired the post-wrap deadline early")
	}
	if e, ok := q.Poll(0x10); !ok || e.Task != 0 {
		t.Fatalf("Poll(0x10) = %+v, %v, want task 0", e, ok)
	}
}

func TestTimerQueueCancel(t *testing.T) {
	q := NewTimerQueue(3)
	q.Schedule(0, 10, 7)
	q.Schedule(1, 20, nil)
	if p, ok := q.Cancel(0); !ok || p != 7 {
		t.Fatalf("Cancel(0) = %v, %v, want 7, true", p, ok)
	}
	if _, ok := q.Cancel(0); ok {
		t.Fatal("second Cancel(0) = true")
	}
	if _, ok := q.Pending(0); ok {
		t.Fatal("Pending(0) after cancel = true")
	}
	if e, ok := q.Poll(100); !ok || e.Task != 1 {
		t.Fatalf("Poll() = %+v, %v, want task 1", e, ok)
	}
}

func TestTimerQueueUnknownTask(t *testing.T) {
	q := NewTimerQueue(2)
	if err := q.Schedule(2, 1, nil); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("Schedule(2) error = %v, want ErrUnknownTask", err)
	}
}
