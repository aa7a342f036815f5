package kernel

// Perm is a set of access rights on a memory region.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// Region is an address range [Base, Base+Size) with access rights.
type Region struct {
	Base uintptr
	Size uintptr
	Perm Perm
}

func (r Region) valid() bool {
	return r.Size != 0 && r.Base+r.Size > r.Base
}

func (r Region) contains(addr, n uintptr) bool {
	if n == 0 {
		return false
	}
	end := addr + n
	if end < addr {
		return false
	}
	return addr >= r.Base && end <= r.Base+r.Size
}

// ProtectionBackend programs the protection hardware for the process about to run.
//
// regions is nil for process 0, which runs unrestricted.
type ProtectionBackend interface {
	Apply(pid PID, regions []Region)
}

type nopBackend struct{}

func (nopBackend) Apply(PID, []Region) {}

// effectiveRegions builds the region set programmed while pid runs: its own
// regions, the shared regions, and read-only views of less trusted processes.
func (k *Kernel) effectiveRegions(pid PID) []Region {
	if pid == KernelPID {
		return nil
	}
	var out []Region
	out = append(out, k.procs[pid].regions...)
	out = append(out, k.cfg.SharedRegions...)
	for q := PID(1); q < pid; q++ {
		for _, r := range k.procs[q].regions {
			if r.Perm&PermRead == 0 {
				continue
			}
			out = append(out, Region{Base: r.Base, Size: r.Size, Perm: PermRead})
		}
	}
	return out
}

func (k *Kernel) allowed(pid PID, addr, n uintptr, need Perm) bool {
	if pid > NumProcesses {
		return false
	}
	for _, r := range k.cfg.SharedRegions {
		if r.contains(addr, n) && (pid == KernelPID || r.Perm&need == need) {
			return true
		}
	}
	for q := PID(0); q <= NumProcesses; q++ {
		for _, r := range k.procs[q].regions {
			if !r.contains(addr, n) {
				continue
			}
			switch {
			case pid == KernelPID:
				return true
			case q == pid:
				if r.Perm&need == need {
					return true
				}
			case q != KernelPID && q < pid && need == PermRead:
				if r.Perm&PermRead != 0 {
					return true
				}
			}
		}
	}
	return false
}

// CheckReadPtr reports whether process pid may read n bytes at addr.
func (k *Kernel) CheckReadPtr(pid PID, addr, n uintptr) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.allowed(pid, addr, n, PermRead)
}

// CheckWritePtr reports whether process pid may write n bytes at addr.
func (k *Kernel) CheckWritePtr(pid PID, addr, n uintptr) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.allowed(pid, addr, n, PermWrite)
}

func (k *Kernel) switchTo(pid PID) {
	if k.activePID == pid {
		return
	}
	k.activePID = pid
	k.cfg.Backend.Apply(pid, k.procs[pid].effective)
}
