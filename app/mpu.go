package app

import (
	"fmt"

	"warden/hal"
	"warden/wardenos/kernel"
)

// mpuBackend programs the HAL protection unit on every process switch of one
// kernel instance.
type mpuBackend struct {
	mpu   hal.MPU
	check hal.MPUChecker
	log   hal.Logger

	buf    []hal.MPURegion
	failed bool
}

func newMPUBackend(m hal.MPU, log hal.Logger) *mpuBackend {
	b := &mpuBackend{mpu: m, log: log, buf: make([]hal.MPURegion, 0, m.Slots())}
	b.check, _ = m.(hal.MPUChecker)
	return b
}

// Apply loads the region set of pid. Process 0 gets one region spanning the
// whole address space.
func (b *mpuBackend) Apply(pid kernel.PID, regions []kernel.Region) {
	b.buf = b.buf[:0]
	if regions == nil {
		b.buf = append(b.buf, hal.MPURegion{Base: 0, Size: ^uintptr(0), Read: true, Write: true, Exec: true})
	}
	for _, r := range regions {
		b.buf = append(b.buf, hal.MPURegion{
			Base:  r.Base,
			Size:  r.Size,
			Read:  r.Perm&kernel.PermRead != 0,
			Write: r.Perm&kernel.PermWrite != 0,
			Exec:  r.Perm&kernel.PermExec != 0,
		})
	}
	if err := b.mpu.Load(b.buf); err != nil && !b.failed {
		b.failed = true
		b.log.WriteLineString(fmt.Sprintf("mpu: process %d: %v", pid, err))
	}
}

// faults reports whether the loaded region set traps the data access. Units
// that cannot be queried never trap.
func (b *mpuBackend) faults(addr, n uintptr, write bool) bool {
	if b == nil || b.check == nil {
		return false
	}
	return !b.check.Allows(addr, n, write)
}
