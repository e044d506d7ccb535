//go:build !tinygo

package hal

import (
	"io"
	"sync"
)

type hostSerial struct {
	mu sync.Mutex
	rw io.ReadWriter
}

func (s *hostSerial) Read(p []byte) (int, error) {
	if s.rw == nil {
		return 0, ErrNotImplemented
	}
	return s.rw.Read(p)
}

func (s *hostSerial) Write(p []byte) (int, error) {
	if s.rw == nil {
		return 0, ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rw.Write(p)
}
