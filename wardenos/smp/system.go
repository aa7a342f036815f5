// Package smp runs one kernel instance per core and lets cores request
// activations of each other's events.
//
// Cores never call into another core's kernel directly. A notification is
// posted into the receiving core's mailbox and the receiving core turns it into
// an event trigger, the way an inter-core interrupt would.
package smp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"warden/wardenos/kernel"

	"golang.org/x/sync/errgroup"
)

const maxBindings = 256

var (
	ErrBadCore         = errors.New("smp: bad core index")
	ErrTooManyBindings = errors.New("smp: too many bindings")
)

// Notification is a handle to an event on a specific core, obtained from Bind.
type Notification struct {
	core int
	bind uint8
	ok   bool
}

// Core returns the index of the receiving core.
func (n Notification) Core() int { return n.core }

type core struct {
	k    *kernel.Kernel
	mbox Mailbox
	kick chan struct{}

	mu    sync.Mutex
	binds []kernel.Event
	lost  uint32
}

// System is the set of kernel instances of a multi-core configuration.
type System struct {
	cores []*core
}

// New returns a system with one core per kernel, in core index order.
func New(kernels ...*kernel.Kernel) *System {
	s := &System{}
	for _, k := range kernels {
		s.cores = append(s.cores, &core{k: k, kick: make(chan struct{}, 1)})
	}
	return s
}

// NumCores returns the number of cores.
func (s *System) NumCores() int { return len(s.cores) }

// Kernel returns the kernel of core i.
func (s *System) Kernel(i int) *kernel.Kernel {
	if i < 0 || i >= len(s.cores) {
		return nil
	}
	return s.cores[i].k
}

// Bind makes ev, an event of core i, reachable from other cores.
func (s *System) Bind(i int, ev kernel.Event) (Notification, error) {
	if i < 0 || i >= len(s.cores) {
		return Notification{}, ErrBadCore
	}
	c := s.cores[i]
	if !c.k.Owns(ev) {
		return Notification{}, kernel.ErrBadEventID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.binds) >= maxBindings {
		return Notification{}, ErrTooManyBindings
	}
	c.binds = append(c.binds, ev)
	return Notification{core: i, bind: uint8(len(c.binds) - 1), ok: true}, nil
}

// Notify posts a trigger request to the receiving core. It returns false if the
// mailbox is full; the request is then counted as lost on the receiving core.
func (s *System) Notify(n Notification, param uintptr) bool {
	if !n.ok || n.core >= len(s.cores) {
		return false
	}
	c := s.cores[n.core]
	if !c.mbox.TrySend(notice{bind: n.bind, param: param}) {
		c.mu.Lock()
		if c.lost != ^uint32(0) {
			c.lost++
		}
		c.mu.Unlock()
		return false
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
	return true
}

// Poll delivers the pending notifications of core i to its kernel and returns
// how many were accepted. Only one goroutine may poll a given core.
func (s *System) Poll(i int) int {
	if i < 0 || i >= len(s.cores) {
		return 0
	}
	c := s.cores[i]
	accepted := 0
	for {
		n, ok := c.mbox.TryRecv()
		if !ok {
			return accepted
		}
		c.mu.Lock()
		ev := c.binds[n.bind]
		c.mu.Unlock()
		if c.k.TriggerEvent(ev, n.param) {
			accepted++
		}
	}
}

// Pending returns the number of notifications queued for core i and not yet
// delivered to its kernel.
func (s *System) Pending(i int) int {
	if i < 0 || i >= len(s.cores) {
		return 0
	}
	return s.cores[i].mbox.Len()
}

// Lost returns the number of notifications dropped at a full mailbox of core i.
func (s *System) Lost(i int) uint32 {
	if i < 0 || i >= len(s.cores) {
		return 0
	}
	c := s.cores[i]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// Run drives every core: each kernel runs its idle loop, notifications are
// delivered as they arrive, and every value received from ticks advances all
// kernels to that tick. Run returns when ctx is done or a kernel halts.
func (s *System) Run(ctx context.Context, ticks <-chan uint64) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range s.cores {
		i, c := i, c
		g.Go(func() error {
			err := c.k.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("core %d: %w", i, err)
		})
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-c.kick:
					s.Poll(i)
				}
			}
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case seq, ok := <-ticks:
				if !ok {
					return nil
				}
				for _, c := range s.cores {
					c.k.TickTo(seq)
				}
			}
		}
	})
	return g.Wait()
}
