//go:build !tinygo

package hal

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestPinCapsLimitConfigure(t *testing.T) {
	p := newVirtualPin("GPIO1", GPIOCapInput|GPIOCapOutput|GPIOCapPullUp)
	if err := p.Configure(GPIOModeInput, GPIOPullDown); err == nil {
		t.Fatal("Configure(input, pull-down) succeeded without the capability")
	}
	if err := p.Configure(GPIOModeOutput, GPIOPullNone); err != nil {
		t.Fatalf("Configure(output) = %v", err)
	}
	if err := p.Write(true); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if level, _ := p.Read(); !level {
		t.Fatal("output pin reads back low")
	}
	led := newLEDPin("LED", &hostLED{logger: &hostLogger{w: io.Discard}})
	if err := led.Configure(GPIOModeInput, GPIOPullNone); err == nil {
		t.Fatal("Configure(input) on the LED succeeded")
	}
}

func TestEdgeDetector(t *testing.T) {
	samples := []bool{true, true, false, false, true, false}
	for _, tc := range []struct {
		edge Edge
		want []int
	}{
		{EdgeRising, []int{4}},
		{EdgeFalling, []int{2, 5}},
		{EdgeBoth, []int{2, 4, 5}},
	} {
		d := edgeDetector{edge: tc.edge}
		var got []int
		for i, s := range samples {
			if d.step(s) {
				got = append(got, i)
			}
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%v edges at %v, want %v", tc.edge, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%v edges at %v, want %v", tc.edge, got, tc.want)
			}
		}
	}
}

func TestVirtualPinPullAndDrive(t *testing.T) {
	p := newVirtualPin("BTN", GPIOCapInput|GPIOCapPullUp)
	if err := p.Configure(GPIOModeInput, GPIOPullUp); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if level, _ := p.Read(); !level {
		t.Fatal("pulled-up pin reads low")
	}
	p.Drive(false)
	if level, _ := p.Read(); level {
		t.Fatal("driven pin reads high")
	}
	if err := p.Write(true); err == nil {
		t.Fatal("Write on input-only pin succeeded")
	}
}

func TestWatchEdgesReportsPress(t *testing.T) {
	p := newVirtualPin("BTN", GPIOCapInput|GPIOCapPullUp)
	p.Configure(GPIOModeInput, GPIOPullUp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fired := make(chan bool, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchEdges(ctx, p, EdgeFalling, time.Millisecond, func(level bool) { fired <- level })
	}()

	// Toggle until the watcher, primed high, sees a press.
	deadline := time.After(2 * time.Second)
	for pressed := false; !pressed; {
		p.Drive(true)
		time.Sleep(5 * time.Millisecond)
		p.Drive(false)
		select {
		case level := <-fired:
			if level {
				t.Fatal("falling edge reported high level")
			}
			pressed = true
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatal("no edge reported")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("WatchEdges() = %v, want nil", err)
	}
}
