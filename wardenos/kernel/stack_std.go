//go:build !tinygo

package kernel

import "runtime"

// captureStack returns the stack of the calling goroutine, cut to
// maxStackDump bytes so it fits a log burst and the panic screen.
func captureStack() []byte {
	buf := make([]byte, maxStackDump)
	return buf[:runtime.Stack(buf, false)]
}
