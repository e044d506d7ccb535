package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultParses(t *testing.T) {
	s := Default()
	if s.Levels != 4 || s.ClockHz != 1000 {
		t.Fatalf("levels/clock = %d/%d, want 4/1000", s.Levels, s.ClockHz)
	}
	in, ok := s.Interrupt("exti")
	if !ok || len(in.Lines) != 2 {
		t.Fatalf("Interrupt(exti) = %+v, %v", in, ok)
	}
	var sampler *Task
	for i := range s.Tasks {
		if s.Tasks[i].Name == "sampler" {
			sampler = &s.Tasks[i]
		}
	}
	if sampler == nil || sampler.Period.Std() != 50*time.Millisecond {
		t.Fatalf("sampler = %+v, want 50ms period", sampler)
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Default().Keys()
	want := []KeyBinding{
		{Key: "1", IRQ: 6, Line: "BTN1"},
		{Key: "2", IRQ: 6, Line: "BTN2"},
		{Key: "u", IRQ: 37},
	}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %+v, want %+v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys()[%d] = %+v, want %+v", i, keys[i], want[i])
		}
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("levels: 2\nlevles: 3\n"))
	if err == nil || !strings.Contains(err.Error(), "levles") {
		t.Fatalf("Parse() error = %v, want unknown field", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	src := `
levels: 2
interrupts:
  - {name: a, irq: 1, edge: sideways}
queues:
  - {name: q, capacity: 12}
tasks:
  - {name: t1, priority: 1, irq: b, behaviour: toggle}
  - {name: t2, priority: 1, behaviour: filter, queue: nope, resources: [r]}
  - {name: t2, priority: 1}
`
	_, err := Parse([]byte(src))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse() error = %v, want ErrInvalid", err)
	}
	for _, want := range []string{
		`edge "sideways"`,
		`capacity 12`,
		`unknown interrupt "b"`,
		`unknown queue "nope"`,
		`unknown resource "r"`,
		`task "t2" missing or repeated`,
		`has no behaviour`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLineMustExist(t *testing.T) {
	src := `
levels: 2
interrupts:
  - name: exti
    irq: 6
    lines: [{name: A}]
tasks:
  - {name: t, priority: 1, irq: exti, behaviour: toggle}
  - {name: u, priority: 1, irq: exti, line: B, behaviour: toggle}
`
	_, err := Parse([]byte(src))
	if err == nil || !strings.Contains(err.Error(), "name a line") || !strings.Contains(err.Error(), `no line "B"`) {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestPeriodNeedsSoftwareTask(t *testing.T) {
	src := `
levels: 2
interrupts:
  - {name: tim2, irq: 28}
tasks:
  - {name: t, priority: 1, irq: tim2, behaviour: heartbeat, period: 10ms}
`
	_, err := Parse([]byte(src))
	if err == nil || !strings.Contains(err.Error(), `bound to interrupt "tim2"`) {
		t.Fatalf("Parse() error = %v, want period rejected", err)
	}
}

func TestBadDuration(t *testing.T) {
	_, err := Parse([]byte("levels: 1\ntasks:\n  - {name: t, priority: 1, behaviour: heartbeat, period: soon}\n"))
	if err == nil || !strings.Contains(err.Error(), "soon") {
		t.Fatalf("Parse() error = %v, want duration error", err)
	}
}

func TestLoadAndMarshal(t *testing.T) {
	b, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "sys.yaml")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v\n%s", err, b)
	}
	if len(s.Tasks) != len(Default().Tasks) || s.Tasks[3].Period.Std() != 50*time.Millisecond {
		t.Fatalf("reloaded tasks = %+v", s.Tasks)
	}
	if s.Resources[1].Initial != nil {
		t.Fatalf("resource duty initial = %v, want unset", *s.Resources[1].Initial)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load(missing) succeeded")
	}
}
