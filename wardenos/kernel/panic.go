package kernel

import (
	"sync"
	"sync/atomic"
)

const maxStackDump = 4096

// PanicInfo describes a fatal kernel error.
type PanicInfo struct {
	Core  int
	PID   PID
	Value any
	Stack []byte
}

var (
	panicActive atomic.Bool
	panicOnce   sync.Once

	panicHandler atomic.Value // func(PanicInfo)
)

// InPanicMode reports whether any kernel instance has crashed.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide panic handler.
//
// The handler is invoked at most once (on the first crash). It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func triggerPanic(info PanicInfo) {
	panicOnce.Do(func() {
		panicActive.Store(true)
		if info.Stack == nil {
			info.Stack = captureStack()
		}
		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}

// crash halts the kernel after a fault in trusted code. Called and returns
// with k.mu held; the handler runs without the lock.
func (k *Kernel) crash(f *frame, v any) {
	k.phase = phaseHalted
	k.logf("panic in OS context: %v", v)
	k.signal()

	info := PanicInfo{Core: k.cfg.Core, PID: f.pid, Value: v, Stack: captureStack()}
	k.mu.Unlock()
	triggerPanic(info)
	k.mu.Lock()
}
