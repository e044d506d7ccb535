package trace

import (
	"sync"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// Console is a scrolling text pane on a framebuffer. It is a hal.Logger.
type Console struct {
	mu sync.Mutex
	t  *tinyterm.Terminal
}

func NewConsole(d *Display) *Console {
	t := tinyterm.NewTerminal(d)
	t.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        7,
		UseSoftwareScroll: true,
	})
	return &Console{t: t}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.Write(p)
}

func (c *Console) WriteLineString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t.Write([]byte(s))
	c.t.Write([]byte("\r\n"))
}

func (c *Console) WriteLineBytes(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t.Write(b)
	c.t.Write([]byte("\r\n"))
}
