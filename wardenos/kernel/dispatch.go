package kernel

import (
	"time"
)

// dispatch serves every triggered event with a priority above the priority of
// the running context. Called and returns with k.mu held; k.mu is released
// while task bodies run.
func (k *Kernel) dispatch() {
	if k.phase != phaseRunning {
		return
	}
	entry := k.prio
	for i := 0; i < len(k.events); {
		ev := k.events[i]
		if ev.prio <= entry || k.phase != phaseRunning {
			break
		}
		if ev.phase != evTriggered {
			i++
			continue
		}

		ev.phase = evInProgress
		k.prio = ev.prio
		param := ev.pending
		for _, t := range ev.tasks {
			k.launch(ev, t, param)
			if k.phase != phaseRunning {
				break
			}
		}
		ev.phase = evIdle

		// Go back to the head of this priority group so that an equal priority
		// event triggered meanwhile is served before any lower one. Interrupts
		// may have triggered a higher group while a task ran without kernel calls.
		i = ev.next
		if k.pendingAbove(ev.prio) {
			i = 0
		}
	}
	k.prio = entry
}

func (k *Kernel) pendingAbove(p Priority) bool {
	for _, ev := range k.events {
		if ev.prio <= p {
			return false
		}
		if ev.phase == evTriggered {
			return true
		}
	}
	return false
}

func (k *Kernel) launch(ev *eventState, t Task, param uintptr) {
	switch t := t.(type) {
	case OSTask:
		k.runOS(func(c *OSContext) { t.Fn(c, param) })
	case UserTask:
		if k.procs[t.PID].suspended {
			satInc(&ev.loss)
			return
		}
		k.runUser(t, param, false)
	}
}

// linkEvents computes the scan successor of every event. Events are fixed after start.
func (k *Kernel) linkEvents() {
	head := 0
	for i, ev := range k.events {
		if i == 0 || k.events[i-1].prio != ev.prio {
			head = i
			ev.next = i + 1
			continue
		}
		ev.next = head
	}
}

// outcome is what a user activation reports back to the context that started it.
type outcome struct {
	ret    int32
	fault  bool
	cause  Cause
	killed bool
}

// runOS runs fn as a kernel activation on the calling goroutine.
func (k *Kernel) runOS(fn func(c *OSContext)) {
	f := &frame{parent: k.cur, pid: KernelPID, base: k.prio}
	if !k.charge(f, k.cfg.TaskFrameBytes) {
		k.crash(f, "kernel stack overflow")
		return
	}
	k.cur = f
	k.switchTo(KernelPID)
	k.mu.Unlock()

	r := callOS(&OSContext{k: k, f: f}, fn)

	k.mu.Lock()
	k.release(f)
	k.restore(f.parent)
	if k.prio != f.base {
		satInc(&k.procs[KernelPID].unbalancedPCP)
		k.logf("OS task left with priority %d, restored %d", k.prio, f.base)
		k.prio = f.base
	}
	if r == nil {
		return
	}
	if u, ok := r.(unwind); ok {
		// The OS activation ran on behalf of an abandoned user activation.
		k.mu.Unlock()
		panic(u)
	}
	k.crash(f, r)
}

// restore makes parent the running context again and reloads its regions.
func (k *Kernel) restore(parent *frame) {
	k.cur = parent
	if parent != nil {
		k.switchTo(parent.pid)
	} else {
		k.switchTo(KernelPID)
	}
}

func callOS(c *OSContext, fn func(c *OSContext)) (r any) {
	defer func() {
		r = recover()
	}()
	fn(c)
	return nil
}

// runUser runs t on its own goroutine and blocks the calling context until the
// activation returns, faults, or overruns its budget. Called and returns with
// k.mu held.
func (k *Kernel) runUser(t UserTask, param uintptr, nested bool) (int32, *TaskError) {
	parent := k.cur
	f := &frame{
		parent: parent,
		pid:    t.PID,
		base:   k.prio,
		user:   true,
		nested: nested,
		done:   make(chan outcome, 1),
	}
	if !k.charge(f, k.cfg.TaskFrameBytes) {
		k.countFailure(t.PID, CauseStackOverflow)
		return -1, &TaskError{PID: t.PID, Cause: CauseStackOverflow}
	}
	k.cur = f
	k.switchTo(t.PID)
	go execUser(&TaskContext{k: k, f: f}, t.Fn, param)
	k.mu.Unlock()

	out := k.await(f, t.Budget)

	k.mu.Lock()
	k.release(f)
	k.restore(parent)

	if f.killed.Load() {
		out = outcome{fault: true, cause: f.cause}
	} else if k.prio != f.base {
		satInc(&k.procs[t.PID].unbalancedPCP)
		k.logf("process %d: task left with priority %d, restored %d", t.PID, k.prio, f.base)
	}
	k.prio = f.base

	switch {
	case out.fault:
		k.countFailure(t.PID, out.cause)
		return -1, &TaskError{PID: t.PID, Cause: out.cause}
	case out.ret < 0:
		k.countFailure(t.PID, CauseUserAbort)
		return out.ret, &TaskError{PID: t.PID, Cause: CauseUserAbort}
	}
	return out.ret, nil
}

// await waits for the activation f. On budget overrun f is marked killed; if
// f is the running context it is abandoned at once, otherwise it unwinds when
// control returns to it.
func (k *Kernel) await(f *frame, budget time.Duration) outcome {
	if budget <= 0 {
		return <-f.done
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case out := <-f.done:
		return out
	case <-timer.C:
	}

	k.mu.Lock()
	select {
	case out := <-f.done:
		k.mu.Unlock()
		return out
	default:
	}
	if !f.killed.Load() {
		f.cause = CauseDeadline
		f.killed.Store(true)
	}
	abandon := k.cur == f
	k.mu.Unlock()

	if abandon {
		k.logf("process %d: task abandoned after %s", f.pid, budget)
		return outcome{killed: true}
	}
	return <-f.done
}

func execUser(c *TaskContext, fn UserTaskFunc, param uintptr) {
	var out outcome
	defer func() {
		if r := recover(); r != nil {
			out = classify(r)
		}
		c.f.done <- out
	}()
	out.ret = fn(c, param)
}
