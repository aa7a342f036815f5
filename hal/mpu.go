package hal

import "sync"

const defaultMPUSlots = 16

// softMPU keeps the loaded region set in memory. It is the protection unit of
// targets without one the kernel can program; the kernel's own pointer checks
// still apply.
type softMPU struct {
	mu      sync.Mutex
	slots   int
	regions []MPURegion
}

func newSoftMPU(slots int) *softMPU {
	if slots <= 0 {
		slots = defaultMPUSlots
	}
	return &softMPU{slots: slots, regions: make([]MPURegion, 0, slots)}
}

func (m *softMPU) Slots() int { return m.slots }

func (m *softMPU) Load(regions []MPURegion) error {
	if len(regions) > m.slots {
		return ErrMPUSlots
	}
	for _, r := range regions {
		if r.Size == 0 || r.Base+r.Size < r.Base {
			return ErrMPURegion
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = append(m.regions[:0], regions...)
	return nil
}

// Allows reports whether the loaded set grants access to [addr, addr+n).
func (m *softMPU) Allows(addr, n uintptr, write bool) bool {
	if addr+n < addr {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		if addr < r.Base || addr+n > r.Base+r.Size {
			continue
		}
		if write {
			return r.Write
		}
		return r.Read
	}
	return false
}
