package kernel

// ProcessConfig is the static layout of a user process.
type ProcessConfig struct {
	// StackSize in bytes; must be a multiple of 8 between 256 and 64 KiB.
	StackSize uint32
	// Regions are the private memory ranges of the process.
	Regions []Region
}

type process struct {
	configured bool
	suspended  bool

	stackSize uint32
	stackUsed uint32
	stackHigh uint32

	failures      uint32
	byCause       [NumCauses]uint32
	unbalancedPCP uint32

	regions   []Region
	effective []Region

	init *UserTask
}

// ProcessStats is a snapshot of a process's accounting.
type ProcessStats struct {
	PID           PID
	Configured    bool
	Suspended     bool
	Failures      uint32
	ByCause       [NumCauses]uint32
	StackSize     uint32
	StackReserve  uint32
	UnbalancedPCP uint32
}

func (p *process) stats(pid PID) ProcessStats {
	return ProcessStats{
		PID:           pid,
		Configured:    p.configured,
		Suspended:     p.suspended,
		Failures:      p.failures,
		ByCause:       p.byCause,
		StackSize:     p.stackSize,
		StackReserve:  p.stackSize - p.stackHigh,
		UnbalancedPCP: p.unbalancedPCP,
	}
}

func (p *process) fail(c Cause) {
	satInc(&p.failures)
	if c < NumCauses {
		satInc(&p.byCause[c])
	}
}

func (k *Kernel) countFailure(pid PID, c Cause) {
	k.procs[pid].fail(c)
	k.logf("process %d: task failed: %s", pid, c)
}

func validStack(size uint32) bool {
	return size >= minStackSize && size <= maxStackSize && size%stackAlignment == 0
}

func (k *Kernel) maxPIDInUse() PID {
	for pid := PID(NumProcesses); pid > KernelPID; pid-- {
		if k.procs[pid].configured {
			return pid
		}
	}
	return KernelPID
}

func (k *Kernel) runGranted(caller, target PID) bool {
	return k.runGrant[caller]&(1<<target) != 0
}

func (k *Kernel) suspendGranted(caller, target PID) bool {
	return k.suspendGrant[caller]&(1<<target) != 0
}

// suspend marks pid suspended. Tasks of pid still on the context stack are
// unwound at their next kernel call.
func (k *Kernel) suspend(pid PID) error {
	if pid == KernelPID || pid > NumProcesses || !k.procs[pid].configured {
		return ErrBadProcessID
	}
	if k.procs[pid].suspended {
		return nil
	}
	k.procs[pid].suspended = true
	k.logf("process %d: suspended", pid)
	return nil
}

// SuspendProcess suspends pid from outside any task, e.g. from a watchdog ISR.
func (k *Kernel) SuspendProcess(pid PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.phase != phaseRunning {
		return ErrKernelHalted
	}
	return k.suspend(pid)
}

// IsProcessSuspended reports whether pid has been suspended.
func (k *Kernel) IsProcessSuspended(pid PID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pid > NumProcesses {
		return false
	}
	return k.procs[pid].suspended
}

// TaskFailures returns the total number of failed activations of pid.
func (k *Kernel) TaskFailures(pid PID) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pid > NumProcesses {
		return 0
	}
	return k.procs[pid].failures
}

// TaskFailuresByCause returns the failures of pid with cause c.
func (k *Kernel) TaskFailuresByCause(pid PID, c Cause) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pid > NumProcesses || c >= NumCauses {
		return 0
	}
	return k.procs[pid].byCause[c]
}

// StackReserve returns the unused stack of pid at its deepest point so far.
func (k *Kernel) StackReserve(pid PID) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pid > NumProcesses {
		return 0
	}
	p := &k.procs[pid]
	return p.stackSize - p.stackHigh
}

// Stats returns a snapshot of the accounting of pid.
func (k *Kernel) Stats(pid PID) ProcessStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pid > NumProcesses {
		return ProcessStats{PID: pid}
	}
	return k.procs[pid].stats(pid)
}
