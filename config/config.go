// Package config loads system descriptions: interrupt sources, spare
// sources, shared resources, byte queues and tasks.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var rawDefault []byte

var ErrInvalid = errors.New("invalid system description")

// System describes one board configuration.
type System struct {
	Name          string      `yaml:"name"`
	Levels        int         `yaml:"levels"`
	ClockHz       uint32      `yaml:"clock_hz,omitempty"`
	TimerPriority int         `yaml:"timer_priority,omitempty"`
	Interrupts    []Interrupt `yaml:"interrupts"`
	Spares        []Spare     `yaml:"spares"`
	Resources     []Resource  `yaml:"resources"`
	Queues        []Queue     `yaml:"queues,omitempty"`
	Tasks         []Task      `yaml:"tasks"`
}

// Interrupt is a hardware source. A source with lines is a shared vector.
// Pin, Edge and Key name what raises it on the host.
type Interrupt struct {
	Name  string `yaml:"name"`
	IRQ   uint16 `yaml:"irq"`
	Pin   string `yaml:"pin,omitempty"`
	Edge  string `yaml:"edge,omitempty"`
	Key   string `yaml:"key,omitempty"`
	Lines []Line `yaml:"lines,omitempty"`
}

// Line is one flag of a shared vector.
type Line struct {
	Name string `yaml:"name"`
	Pin  string `yaml:"pin,omitempty"`
	Edge string `yaml:"edge,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Spare is a source reserved for dispatching software tasks.
type Spare struct {
	Name string `yaml:"name"`
	IRQ  uint16 `yaml:"irq"`
}

// Resource is a shared integer cell. Without Initial it is left for the
// init hook to fill.
type Resource struct {
	Name    string `yaml:"name"`
	Initial *int64 `yaml:"initial,omitempty"`
}

// Queue is a byte queue between two contexts.
type Queue struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

// Task declares one task. IRQ names an interrupt; empty means the task is
// software-dispatched. The remaining fields parameterise the behaviour.
type Task struct {
	Name      string   `yaml:"name"`
	Priority  int      `yaml:"priority"`
	IRQ       string   `yaml:"irq,omitempty"`
	Line      string   `yaml:"line,omitempty"`
	Order     int      `yaml:"order,omitempty"`
	Capacity  int      `yaml:"capacity,omitempty"`
	Behaviour string   `yaml:"behaviour"`
	Resources []string `yaml:"resources,omitempty"`
	Period    Duration `yaml:"period,omitempty"`
	Channel   int      `yaml:"channel,omitempty"`
	Queue     string   `yaml:"queue,omitempty"`
	Notify    string   `yaml:"notify,omitempty"`
}

// Default returns the embedded demo description.
func Default() *System {
	s, err := Parse(rawDefault)
	if err != nil {
		panic("config: embedded default: " + err.Error())
	}
	return s
}

// Load reads and validates a description file.
func Load(path string) (*System, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	s, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a description. Unknown keys are rejected.
func Parse(b []byte) (*System, error) {
	var s System
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if s.ClockHz == 0 {
		s.ClockHz = 1000
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Marshal encodes the description back to YAML.
func (s *System) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks names and references. Scheduling rules (priorities per
// level, spare sources, bindings) are left to the kernel builder.
func (s *System) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format+": %w", append(args, ErrInvalid)...))
	}

	if s.Levels <= 0 {
		fail("levels %d", s.Levels)
	}
	irqs := map[string]*Interrupt{}
	for i := range s.Interrupts {
		in := &s.Interrupts[i]
		if in.Name == "" {
			fail("interrupt %d has no name", i)
			continue
		}
		if irqs[in.Name] != nil {
			fail("interrupt %q declared twice", in.Name)
		}
		irqs[in.Name] = in
		if err := checkEdge(in.Edge); err != nil {
			fail("interrupt %q: %v", in.Name, err)
		}
		lines := map[string]bool{}
		for _, l := range in.Lines {
			if l.Name == "" || lines[l.Name] {
				fail("interrupt %q: line %q missing or repeated", in.Name, l.Name)
			}
			lines[l.Name] = true
			if err := checkEdge(l.Edge); err != nil {
				fail("interrupt %q line %q: %v", in.Name, l.Name, err)
			}
		}
	}
	for i, sp := range s.Spares {
		if sp.Name == "" {
			fail("spare %d has no name", i)
		}
	}
	res := map[string]bool{}
	for _, r := range s.Resources {
		if r.Name == "" || res[r.Name] {
			fail("resource %q missing or repeated", r.Name)
		}
		res[r.Name] = true
	}
	queues := map[string]bool{}
	for _, q := range s.Queues {
		if q.Name == "" || queues[q.Name] {
			fail("queue %q missing or repeated", q.Name)
		}
		queues[q.Name] = true
		if c := q.Capacity; c < 2 || c&(c-1) != 0 {
			fail("queue %q: capacity %d is not a power of two", q.Name, c)
		}
	}
	tasks := map[string]bool{}
	for _, t := range s.Tasks {
		if t.Name == "" || tasks[t.Name] {
			fail("task %q missing or repeated", t.Name)
		}
		tasks[t.Name] = true
	}
	for _, t := range s.Tasks {
		if t.Behaviour == "" {
			fail("task %q has no behaviour", t.Name)
		}
		if t.IRQ != "" {
			in := irqs[t.IRQ]
			switch {
			case in == nil:
				fail("task %q: unknown interrupt %q", t.Name, t.IRQ)
			case t.Line == "" && len(in.Lines) > 0:
				fail("task %q: interrupt %q is shared, name a line", t.Name, t.IRQ)
			case t.Line != "" && slices.IndexFunc(in.Lines, func(l Line) bool { return l.Name == t.Line }) < 0:
				fail("task %q: interrupt %q has no line %q", t.Name, t.IRQ, t.Line)
			}
		} else if t.Line != "" {
			fail("task %q: line %q without an interrupt", t.Name, t.Line)
		}
		for _, r := range t.Resources {
			if !res[r] {
				fail("task %q: unknown resource %q", t.Name, r)
			}
		}
		if t.Queue != "" && !queues[t.Queue] {
			fail("task %q: unknown queue %q", t.Name, t.Queue)
		}
		if t.Notify != "" && !tasks[t.Notify] {
			fail("task %q: unknown task %q to notify", t.Name, t.Notify)
		}
		switch {
		case t.Period < 0:
			fail("task %q: negative period", t.Name)
		case t.Period > 0 && t.IRQ != "":
			// Periodic re-arming needs a deadline, which interrupt-bound runs lack.
			fail("task %q: period needs a software task, it is bound to interrupt %q", t.Name, t.IRQ)
		}
	}
	return errors.Join(errs...)
}

func checkEdge(e string) error {
	switch e {
	case "", "rising", "falling", "both":
		return nil
	}
	return fmt.Errorf("unknown edge %q", e)
}

// Interrupt returns the interrupt called name.
func (s *System) Interrupt(name string) (*Interrupt, bool) {
	for i := range s.Interrupts {
		if s.Interrupts[i].Name == name {
			return &s.Interrupts[i], true
		}
	}
	return nil, false
}

// Keys maps each keyboard key to the interrupt (and line, if any) it
// raises, sorted by key.
func (s *System) Keys() []KeyBinding {
	m := map[string]KeyBinding{}
	for _, in := range s.Interrupts {
		if in.Key != "" {
			m[in.Key] = KeyBinding{Key: in.Key, IRQ: in.IRQ}
		}
		for _, l := range in.Lines {
			if l.Key != "" {
				m[l.Key] = KeyBinding{Key: l.Key, IRQ: in.IRQ, Line: l.Name}
			}
		}
	}
	keys := maps.Keys(m)
	slices.Sort(keys)
	out := make([]KeyBinding, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// KeyBinding ties a key to a source.
type KeyBinding struct {
	Key  string
	IRQ  uint16
	Line string
}
