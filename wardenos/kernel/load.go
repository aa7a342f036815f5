package kernel

import "time"

// loadMeter measures the share of time the idle context spends outside the
// idle wait, averaged over fixed windows.
type loadMeter struct {
	window  time.Duration
	start   time.Time
	idle    time.Duration
	load    uint16
	started bool
	valid   bool
}

func (m *loadMeter) begin(now time.Time, window time.Duration) {
	m.window = window
	m.start = now
	m.idle = 0
	m.started = true
}

// idleSpan accounts the idle wait [from, to) and closes the window once it is
// complete.
func (m *loadMeter) idleSpan(from, to time.Time) {
	if !m.started {
		m.begin(from, m.window)
	}
	if to.After(from) {
		m.idle += to.Sub(from)
	}
	elapsed := to.Sub(m.start)
	if elapsed < m.window || elapsed <= 0 {
		return
	}
	idle := min(m.idle, elapsed)
	m.load = uint16((elapsed - idle) * 1000 / elapsed)
	m.valid = true
	m.start = to
	m.idle = 0
}

// SystemLoad returns the load of the last complete measurement window in per
// mille. ok is false until Run has completed one window.
func (k *Kernel) SystemLoad() (permille uint16, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.load.load, k.load.valid
}
