package hal

import (
	"errors"
	"io"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyCode is a minimal key identifier.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyUp
	KeyDown
	KeyEnter
	KeyEscape
	KeySpace
)

// KeyEvent is a keyboard event. Printable keys carry Rune.
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events (best-effort on each platform).
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// Time is the board timebase: a free-running 32-bit counter plus a tick
// stream for the scheduler's timer interrupt. Now and Hz satisfy
// kernel.Counter.
type Time interface {
	Ticks() <-chan uint64
	Now() uint32
	Hz() uint32
}

// Serial is a byte stream to the outside world.
type Serial interface {
	io.Reader
	io.Writer
}

// ADC samples analog channels. Values are left-aligned 16-bit.
type ADC interface {
	Channels() int
	Read(ch int) (uint16, error)
}

// PWM is a single output channel. Duty is 0..0xFFFF.
type PWM interface {
	SetDuty(duty uint16) error
	Duty() uint16
}

// HAL provides the only contact point between the scheduler and the
// outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	GPIO() GPIO
	Display() Display
	Input() Input
	Time() Time
	Serial() Serial
	ADC() ADC
	PWM() PWM
}
