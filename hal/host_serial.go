//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const defaultSerialBaud = 115200

type hostSerial struct {
	mu sync.Mutex
	r  io.Reader
	w  io.Writer
	c  io.Closer
}

func openSerialPort(name string, baud int) (*hostSerial, error) {
	if baud <= 0 {
		baud = defaultSerialBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("hal: open serial port %s: %w", name, err)
	}
	return &hostSerial{r: port, w: port, c: port}, nil
}

func (s *hostSerial) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, ErrNotImplemented
	}
	return s.r.Read(p)
}

func (s *hostSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *hostSerial) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
