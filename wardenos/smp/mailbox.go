package smp

import (
	"runtime"
	"sync/atomic"
)

const mailboxSlots = 16

// notice is one cross-core event request.
type notice struct {
	bind  uint8
	param uintptr
}

// slot state per lap: seq == 2*lap while free, 2*lap+1 once filled.
type slot struct {
	seq atomic.Uint64
	n   notice
}

// Mailbox is a fixed-size multi-producer, single-consumer queue. The zero
// value is empty and ready to use. It never allocates.
type Mailbox struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint64
	tail  atomic.Uint64
	slots [mailboxSlots]slot
}

// TrySend enqueues n, returning false if the mailbox is full.
func (mb *Mailbox) TrySend(n notice) bool {
	for {
		pos := mb.head.Load()
		s := &mb.slots[pos%mailboxSlots]
		free := pos / mailboxSlots * 2
		seq := s.seq.Load()
		switch {
		case seq == free:
			if mb.head.CompareAndSwap(pos, pos+1) {
				s.n = n
				s.seq.Store(free + 1)
				return true
			}
		case seq < free:
			// The consumer has not drained the previous lap yet.
			return false
		}
		// Another producer claimed pos first.
		runtime.Gosched()
	}
}

// TryRecv dequeues one notice. Only one goroutine may receive.
func (mb *Mailbox) TryRecv() (notice, bool) {
	pos := mb.tail.Load()
	s := &mb.slots[pos%mailboxSlots]
	filled := pos/mailboxSlots*2 + 1
	if s.seq.Load() != filled {
		return notice{}, false
	}
	n := s.n
	s.seq.Store(filled + 1)
	mb.tail.Store(pos + 1)
	return n, true
}

// Len returns the number of queued notices.
func (mb *Mailbox) Len() int {
	return int(mb.head.Load() - mb.tail.Load())
}
