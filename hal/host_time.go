//go:build !tinygo

package hal

import "time"

const hostTickPeriod = time.Millisecond

// hostTime converts elapsed wall time into a stream of millisecond ticks.
// step is called by the host loop; ticks are dropped when nobody reads.
type hostTime struct {
	ch  chan uint64
	seq uint64
	now func() time.Time

	last time.Time
	acc  time.Duration
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024), now: time.Now}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) step() {
	now := t.now()
	if t.last.IsZero() {
		t.last = now
		t.emit(1)
		return
	}
	t.acc += now.Sub(t.last)
	t.last = now

	n := uint64(t.acc / hostTickPeriod)
	if n == 0 {
		return
	}
	t.acc %= hostTickPeriod
	t.emit(n)
}

// emit publishes the sequence number after advancing it by n. Consumers
// follow the sequence, so one value covers all n ticks.
func (t *hostTime) emit(n uint64) {
	t.seq += n
	select {
	case t.ch <- t.seq:
	default:
		// Drop the oldest value so the newest sequence is always visible.
		select {
		case <-t.ch:
		default:
		}
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
