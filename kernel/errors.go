package kernel

import "errors"

// ErrConfiguration is the parent of every error that prevents a system from booting.
var ErrConfiguration = errors.New("configuration error")

var (
	// ErrNoClock means no usable monotonic counter was configured.
	ErrNoClock = configError("no monotonic counter")

	// ErrNoSpareInterrupt means a priority level used by software tasks has no
	// spare interrupt source left to act as its dispatcher.
	ErrNoSpareInterrupt = configError("no spare interrupt source")

	// ErrUnknownInterrupt is returned for an IRQ number that was never declared.
	ErrUnknownInterrupt = errors.New("unknown interrupt source")

	// ErrUnknownTask is returned for a task ID outside the configured table.
	ErrUnknownTask = errors.New("unknown task")
)

// Faults. They are raised as panics inside a task body and halt the system.
var (
	ErrTaskFault          = errors.New("task fault")
	ErrUninitialized      = errors.New("resource not initialized")
	ErrAlreadyInitialized = errors.New("resource already initialized")
	ErrUndeclaredResource = errors.New("resource not declared by task")
	ErrLockOrder          = errors.New("guard released out of order")
	ErrGuardReleased      = errors.New("guard used after release")
)

// Transient conditions. They are returned to the caller.
var (
	ErrInsufficientSpace = errors.New("insufficient contiguous space")
	ErrEmpty             = errors.New("queue empty")
	ErrGrantInProgress   = errors.New("grant already in progress")
	ErrGrantReleased     = errors.New("grant already committed or released")
	ErrInvalidSize       = errors.New("invalid size")
	ErrAlreadySplit      = errors.New("queue already split")
	ErrQueueFull         = errors.New("task queue full")
	ErrNotSpawnable      = errors.New("task is bound to a hardware source")
	ErrHalted            = errors.New("system halted")
	ErrBusy              = errors.New("core already running")
)

type cfgErr struct{ msg string }

func configError(msg string) error { return &cfgErr{msg: msg} }

func (e *cfgErr) Error() string { return e.msg }

func (e *cfgErr) Is(target error) bool { return target == ErrConfiguration }
