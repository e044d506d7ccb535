package kernel

import (
	"fmt"
	"sync/atomic"
)

// PanicInfo describes the fault that halted a system.
type PanicInfo struct {
	TaskID TaskID
	Task   string
	Value  any
	Stack  []byte
}

var panicHandler atomic.Value // func(PanicInfo)

// SetPanicHandler installs the process-wide fault handler used by systems
// whose Config has no PanicHandler. It runs at most once per system and must
// not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

// FaultError is returned by Run and RunPending after a task faulted.
type FaultError struct {
	Task  TaskID
	Name  string
	Value any
	Stack []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("kernel: task %q faulted: %v", e.Name, e.Value)
}

// Unwrap exposes ErrTaskFault, ErrHalted and, when the panic value was an
// error, that error too.
func (e *FaultError) Unwrap() []error {
	errs := []error{ErrTaskFault, ErrHalted}
	if err, ok := e.Value.(error); ok {
		errs = append(errs, err)
	}
	return errs
}

// halt carries a fault from the faulting frame up to the outermost run loop.
type halt struct{ f *FaultError }

// initTask is the TaskID reported for faults in the init hook.
const initTask TaskID = 0xFF

func (s *System) triggerPanic(f *FaultError) {
	s.panicOnce.Do(func() {
		fn := s.onPanic
		if fn == nil {
			if v := panicHandler.Load(); v != nil {
				fn, _ = v.(func(PanicInfo))
			}
		}
		if fn != nil {
			fn(PanicInfo{TaskID: f.Task, Task: f.Name, Value: f.Value, Stack: f.Stack})
		}
	})
}
