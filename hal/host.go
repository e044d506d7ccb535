//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// HostOptions configures the host HAL. Zero values pick the defaults.
type HostOptions struct {
	// Log receives log lines. Defaults to stdout.
	Log io.Writer
	// Serial is the board serial port. Nil leaves the port unconnected.
	Serial io.ReadWriter
	// Width and Height size the framebuffer. Default 320x240.
	Width, Height int
	// Now overrides the wall clock behind Time, ADC and signal pins.
	Now func() time.Time
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	gpio   GPIO
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	serial Serial
	adc    *sineADC
	pwm    *virtualPWM
}

// New returns a host HAL implementation with default options.
func New() HAL { return NewHost(HostOptions{}) }

// NewHost returns a host HAL implementation.
//
// Pins: LED (output), BTN1 and BTN2 (drivable inputs, pulled up) and
// general-purpose GPIO1..4.
func NewHost(opts HostOptions) HAL {
	if opts.Log == nil {
		opts.Log = os.Stdout
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 320, 240
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := &hostLogger{w: opts.Log}
	led := &hostLED{logger: logger}
	pins := []GPIOPin{newLEDPin("LED", led)}
	for _, name := range []string{"BTN1", "BTN2"} {
		p := newVirtualPin(name, GPIOCapInput|GPIOCapPullUp)
		p.Configure(GPIOModeInput, GPIOPullUp)
		pins = append(pins, p)
	}
	for i := 0; i < 4; i++ {
		pins = append(pins, newVirtualPin(fmt.Sprintf("GPIO%d", i+1), GPIOCapInput|GPIOCapOutput|GPIOCapPullUp|GPIOCapPullDown))
	}
	var serial Serial = &hostSerial{}
	if opts.Serial != nil {
		serial = &hostSerial{rw: opts.Serial}
	}
	return &hostHAL{
		logger: logger,
		led:    led,
		gpio:   newVirtualGPIO(pins),
		fb:     newHostFramebuffer(opts.Width, opts.Height),
		kbd:    newHostKeyboard(),
		t:      newHostTime(opts.Now),
		serial: serial,
		adc:    newSineADC(4, 2*time.Second, opts.Now),
		pwm:    &virtualPWM{},
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) GPIO() GPIO       { return h.gpio }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Serial() Serial   { return h.serial }
func (h *hostHAL) ADC() ADC         { return h.adc }
func (h *hostHAL) PWM() PWM         { return h.pwm }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.on {
		l.logger.WriteLineString("led: HIGH")
	}
	l.on = true
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on {
		l.logger.WriteLineString("led: LOW")
	}
	l.on = false
}
