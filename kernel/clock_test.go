package kernel

import (
	"errors"
	"testing"
	"time"
)

func TestTickCompareAcrossWrap(t *testing.T) {
	a := Tick(0xFFFFFFF0)
	b := a.Add(0x20)
	if !a.Before(b) || !b.After(a) {
		t.Fatalf("%#x should be before %#x", a, b)
	}
	if a < b {
		t.Fatal("raw comparison unexpectedly agrees; test needs a wrapped pair")
	}
	if got := b.Sub(a); got != 0x20 {
		t.Fatalf("Sub() = %d, want 32", got)
	}
}

func TestNewClockRequiresCounter(t *testing.T) {
	if _, err := NewClock(nil); !errors.Is(err, ErrNoClock) {
		t.Fatalf("NewClock(nil) error = %v, want ErrNoClock", err)
	}
	if _, err := NewClock(NewManualCounter(0, 0)); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("NewClock(0 Hz) error = %v, want a configuration error", err)
	}
}

func TestClockConversions(t *testing.T) {
	c, err := NewClock(NewManualCounter(1000, 0))
	if err != nil {
		t.Fatalf("NewClock() error = %v", err)
	}
	tests := []struct {
		d    time.Duration
		want Duration
	}{
		{0, 0},
		{time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{time.Second, 1000},
		{1000 * time.Hour, 1<<31 - 1},
	}
	for _, tt := range tests {
		if got := c.Ticks(tt.d); got != tt.want {
			t.Fatalf("Ticks(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
	if got := c.Duration(250); got != 250*time.Millisecond {
		t.Fatalf("Duration(250) = %v, want 250ms", got)
	}
	if got := c.At(0xFFFFFFFF, 2); got != 1 {
		t.Fatalf("At() = %d, want 1", got)
	}
}

func TestManualCounter(t *testing.T) {
	m := NewManualCounter(100, 0xFFFFFFFE)
	if got := m.Advance(3); got != 1 {
		t.Fatalf("Advance(3) = %d, want 1", got)
	}
}
