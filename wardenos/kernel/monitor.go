package kernel

import (
	"runtime"
	"strings"
)

// unwind is panicked into an activation that has been terminated by the kernel.
// It never escapes the activation's goroutine.
type unwind struct{}

// trap is a synchronous exception raised by a task.
type trap struct {
	cause Cause
}

// exit is raised by TerminateTask.
type exit struct {
	ret int32
}

func classify(r any) outcome {
	switch v := r.(type) {
	case unwind:
		return outcome{killed: true}
	case exit:
		return outcome{ret: v.ret}
	case trap:
		return outcome{fault: true, cause: v.cause}
	case runtime.Error:
		return outcome{fault: true, cause: runtimeCause(v)}
	default:
		return outcome{fault: true, cause: CauseProgramInterrupt}
	}
}

// runtimeCause maps a Go runtime panic to the exception class a protected CPU
// would have raised for the same defect.
func runtimeCause(err runtime.Error) Cause {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "nil pointer"), strings.Contains(msg, "invalid memory address"):
		return CauseDIStorage
	case strings.Contains(msg, "index out of range"), strings.Contains(msg, "slice bounds"):
		return CauseMachineCheck
	case strings.Contains(msg, "misaligned"), strings.Contains(msg, "unaligned"):
		return CauseAlignment
	default:
		return CauseProgramInterrupt
	}
}

// charge reserves n bytes of the process stack for f.
func (k *Kernel) charge(f *frame, n uint32) bool {
	p := &k.procs[f.pid]
	if n > p.stackSize-p.stackUsed {
		return false
	}
	p.stackUsed += n
	f.stack += n
	if p.stackUsed > p.stackHigh {
		p.stackHigh = p.stackUsed
	}
	return true
}

func (k *Kernel) uncharge(f *frame, n uint32) {
	if f.ended {
		return
	}
	if n > f.stack {
		n = f.stack
	}
	f.stack -= n
	k.procs[f.pid].stackUsed -= n
}

// release returns everything f holds on its process stack.
func (k *Kernel) release(f *frame) {
	k.procs[f.pid].stackUsed -= f.stack
	f.stack = 0
	f.ended = true
}
