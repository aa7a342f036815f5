package kernel

// TaskContext is handed to a user task activation. All operations are subject to
// the privileges of the task's process. Every call is a preemption point.
//
// A task is only preempted inside its kernel calls. A task that computes
// without calling the kernel delays higher priority events until its next call,
// and once its budget is exceeded the kernel stops waiting for it: the
// abandoned goroutine keeps running alongside whatever is dispatched next until
// its next kernel call unwinds it. Code that must not overlap with other
// activations, such as a Shared access, must not run unbounded loops.
type TaskContext struct {
	k *Kernel
	f *frame
}

// enter takes the kernel lock, serves pending activations of higher priority,
// and unwinds the activation if it has been terminated meanwhile.
func (c *TaskContext) enter() {
	c.k.mu.Lock()
	c.check()
	c.k.dispatch()
	c.check()
}

func (c *TaskContext) leave() {
	c.check()
	c.k.mu.Unlock()
}

// check is called with k.mu held. It releases the lock before unwinding.
func (c *TaskContext) check() {
	k, f := c.k, c.f
	if !f.killed.Load() && k.procs[f.pid].suspended {
		f.cause = CauseProcessAbort
		f.killed.Store(true)
	}
	if f.killed.Load() {
		k.mu.Unlock()
		panic(unwind{})
	}
}

// PID returns the process the task belongs to.
func (c *TaskContext) PID() PID { return c.f.pid }

// Priority returns the current priority, including any PCP elevation.
func (c *TaskContext) Priority() Priority {
	c.enter()
	p := c.k.prio
	c.leave()
	return p
}

// Now returns the tick count.
func (c *TaskContext) Now() uint64 {
	c.enter()
	t := c.k.ticks
	c.leave()
	return t
}

// TriggerEvent requests an activation of ev. It fails with ErrPermission if the
// process is less trusted than the event's MinTrigger. The boolean reports
// whether the activation could be recorded; a higher priority event runs before
// TriggerEvent returns.
func (c *TaskContext) TriggerEvent(ev Event, param uintptr) (bool, error) {
	c.enter()
	k := c.k
	e := k.event(ev)
	if e == nil {
		c.leave()
		return false, ErrBadEventID
	}
	if c.f.pid < e.minTrigger {
		c.leave()
		return false, ErrPermission
	}
	ok := k.trigger(e, param)
	if ok && e.prio > k.prio {
		k.dispatch()
	}
	c.leave()
	return ok, nil
}

// SuspendAllTasksByPriority raises the current priority to ceiling and returns
// the previous priority. ceiling must lie in 1..MaxLockablePriority.
func (c *TaskContext) SuspendAllTasksByPriority(ceiling Priority) (Priority, error) {
	c.enter()
	k := c.k
	prev := k.prio
	if ceiling < 1 || ceiling > k.cfg.MaxLockablePriority {
		c.leave()
		return prev, ErrBadArgument
	}
	if ceiling > prev {
		k.prio = ceiling
	}
	c.leave()
	return prev, nil
}

// ResumeAllTasksByPriority restores the priority returned by the matching
// SuspendAllTasksByPriority and serves what became pending meanwhile. prev
// must lie between the task's own priority and MaxLockablePriority; a task
// whose own priority is above MaxLockablePriority may only resume to it.
func (c *TaskContext) ResumeAllTasksByPriority(prev Priority) error {
	c.enter()
	k := c.k
	if prev < c.f.base || (prev > k.cfg.MaxLockablePriority && prev != c.f.base) {
		c.leave()
		return ErrBadArgument
	}
	if prev < k.prio {
		k.prio = prev
		k.dispatch()
	}
	c.leave()
	return nil
}

// RunTask runs t synchronously in its process at the caller's current priority.
// The caller's process needs a run-task grant for t.PID. A negative result or a
// fault is returned as *TaskError.
func (c *TaskContext) RunTask(t UserTask, param uintptr) (int32, error) {
	c.enter()
	k := c.k
	if c.f.nested || !k.runGranted(c.f.pid, t.PID) {
		c.leave()
		return -1, ErrPermission
	}
	if err := k.checkRunnable(t); err != nil {
		c.leave()
		return -1, err
	}
	ret, terr := k.runUser(t, param, true)
	c.leave()
	if terr != nil {
		return ret, terr
	}
	return ret, nil
}

// SuspendProcess stops all further activations of pid. The caller's process
// needs a suspend grant for pid.
func (c *TaskContext) SuspendProcess(pid PID) error {
	c.enter()
	k := c.k
	if pid > NumProcesses || !k.suspendGranted(c.f.pid, pid) {
		c.leave()
		return ErrPermission
	}
	err := k.suspend(pid)
	c.leave()
	return err
}

// TerminateTask ends the activation immediately, from any call depth. A negative
// result counts as a failure of the process.
func (c *TaskContext) TerminateTask(result int32) {
	panic(exit{ret: result})
}

// Raise ends the activation with an exception of the given class. It is the
// entry used by platform trap handlers and by fault injection.
func (c *TaskContext) Raise(cause Cause) {
	panic(trap{cause: cause})
}

// Delay waits for the given number of ticks. Higher priority activations are
// served while waiting.
func (c *TaskContext) Delay(ticks uint64) {
	c.enter()
	k := c.k
	until := k.ticks + ticks
	for k.ticks < until && k.phase == phaseRunning {
		w := k.wake
		k.mu.Unlock()
		<-w
		c.enter()
	}
	c.leave()
}

// ReserveStack charges n bytes against the process stack for a deeper call
// frame. It raises a stack overflow if the process stack is exhausted.
func (c *TaskContext) ReserveStack(n uint32) (release func()) {
	c.enter()
	k := c.k
	if !k.charge(c.f, n) {
		k.mu.Unlock()
		c.Raise(CauseStackOverflow)
	}
	c.leave()
	return func() {
		k.mu.Lock()
		k.uncharge(c.f, n)
		k.mu.Unlock()
	}
}

// CheckReadPtr reports whether the task's process may read n bytes at addr.
func (c *TaskContext) CheckReadPtr(addr, n uintptr) bool {
	return c.k.CheckReadPtr(c.f.pid, addr, n)
}

// CheckWritePtr reports whether the task's process may write n bytes at addr.
func (c *TaskContext) CheckWritePtr(addr, n uintptr) bool {
	return c.k.CheckWritePtr(c.f.pid, addr, n)
}

// Stats returns the accounting of any process.
func (c *TaskContext) Stats(pid PID) ProcessStats { return c.k.Stats(pid) }

// ActivationLoss returns the activation loss counter of ev.
func (c *TaskContext) ActivationLoss(ev Event) uint32 { return c.k.ActivationLoss(ev) }

func (k *Kernel) checkRunnable(t UserTask) error {
	if t.PID == KernelPID || t.PID > NumProcesses || !k.procs[t.PID].configured {
		return ErrBadProcessID
	}
	if t.Fn == nil {
		return ErrBadTaskFunction
	}
	if t.Budget < 0 || t.Budget > k.cfg.MaxTaskBudget {
		return ErrTaskBudgetTooBig
	}
	if k.procs[t.PID].suspended {
		return ErrProcessSuspended
	}
	return nil
}

// OSContext is handed to OS tasks. OS code is trusted: invalid arguments to
// privileged operations are fatal instead of being reported.
type OSContext struct {
	k *Kernel
	f *frame
}

func (c *OSContext) enter() {
	c.k.mu.Lock()
	c.k.dispatch()
}

func (c *OSContext) leave() {
	c.k.mu.Unlock()
}

// assert stops the kernel if cond does not hold. Called with k.mu held.
func (c *OSContext) assert(cond bool, msg string) {
	if cond {
		return
	}
	c.k.mu.Unlock()
	panic("kernel assertion failed: " + msg)
}

// Now returns the tick count.
func (c *OSContext) Now() uint64 {
	c.enter()
	t := c.k.ticks
	c.leave()
	return t
}

// Priority returns the current priority.
func (c *OSContext) Priority() Priority {
	c.enter()
	p := c.k.prio
	c.leave()
	return p
}

// Kernel returns the kernel the task runs on.
func (c *OSContext) Kernel() *Kernel { return c.k }

// TriggerEvent requests an activation of ev. A higher priority event runs
// before TriggerEvent returns.
func (c *OSContext) TriggerEvent(ev Event, param uintptr) bool {
	c.enter()
	k := c.k
	e := k.event(ev)
	c.assert(e != nil, "bad event handle")
	ok := k.trigger(e, param)
	if ok && e.prio > k.prio {
		k.dispatch()
	}
	c.leave()
	return ok
}

// SuspendAllTasksByPriority raises the current priority to ceiling. A ceiling
// outside 1..MaxTaskPriority halts the kernel. The error is always nil.
func (c *OSContext) SuspendAllTasksByPriority(ceiling Priority) (Priority, error) {
	c.enter()
	k := c.k
	c.assert(ceiling >= 1 && ceiling <= k.cfg.MaxTaskPriority, "PCP ceiling out of range")
	prev := k.prio
	if ceiling > prev {
		k.prio = ceiling
	}
	c.leave()
	return prev, nil
}

// ResumeAllTasksByPriority restores prev. Resuming below the task's own
// priority halts the kernel. The error is always nil.
func (c *OSContext) ResumeAllTasksByPriority(prev Priority) error {
	c.enter()
	k := c.k
	c.assert(prev >= c.f.base && prev <= k.cfg.MaxTaskPriority, "PCP resume below task priority")
	if prev < k.prio {
		k.prio = prev
		k.dispatch()
	}
	c.leave()
	return nil
}

// RunTask runs t synchronously in its process at the current priority.
func (c *OSContext) RunTask(t UserTask, param uintptr) (int32, error) {
	c.enter()
	k := c.k
	if err := k.checkRunnable(t); err != nil {
		c.leave()
		return -1, err
	}
	ret, terr := k.runUser(t, param, true)
	c.leave()
	if terr != nil {
		return ret, terr
	}
	return ret, nil
}

// SuspendProcess stops all further activations of pid.
func (c *OSContext) SuspendProcess(pid PID) error {
	c.enter()
	err := c.k.suspend(pid)
	c.leave()
	return err
}

// Delay waits for the given number of ticks while serving higher priority work.
func (c *OSContext) Delay(ticks uint64) {
	c.enter()
	k := c.k
	until := k.ticks + ticks
	for k.ticks < until && k.phase == phaseRunning {
		w := k.wake
		k.mu.Unlock()
		<-w
		c.enter()
	}
	c.leave()
}

// Stats returns the accounting of any process.
func (c *OSContext) Stats(pid PID) ProcessStats { return c.k.Stats(pid) }
