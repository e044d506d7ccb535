package kernel

import "fmt"

// Logger receives kernel diagnostics, one line per call. hal.Logger
// satisfies it.
type Logger interface {
	WriteLineString(s string)
}

type discardLogger struct{}

func (discardLogger) WriteLineString(string) {}

func (s *System) logf(format string, args ...any) {
	s.log.WriteLineString(fmt.Sprintf("kernel: "+format, args...))
}
