package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type phase uint8

const (
	phaseConfig phase = iota
	phaseInit
	phaseRunning
	phaseHalted
)

// Kernel is one scheduling and protection engine instance, bound to one core.
//
// Exactly one context executes at a time: the idle context (the goroutine in Run
// or Step) or the innermost task activation. Every preempted context is blocked
// until the activations above it have completed.
type Kernel struct {
	cfg Config
	log Logger

	// mu plays the role of the interrupt lock.
	mu sync.Mutex

	events []*eventState // decreasing priority
	byID   []*eventState
	nTasks int

	procs        [NumProcesses + 1]process
	runGrant     [NumProcesses + 1]uint8
	suspendGrant [NumProcesses + 1]uint8
	osInit       func(c *OSContext) int32

	phase    phase
	startErr error

	ticks     uint64
	prio      Priority
	cur       *frame
	activePID PID
	wake      chan struct{}

	load loadMeter
}

// frame is one task activation on the context stack.
type frame struct {
	parent *frame
	pid    PID
	base   Priority
	user   bool
	// nested is set for activations started with RunTask.
	nested bool
	stack  uint32
	ended  bool

	killed atomic.Bool
	cause  Cause
	done   chan outcome
}

func (k *Kernel) logf(format string, args ...any) {
	k.log.WriteLineString(fmt.Sprintf("kernel%d: ", k.cfg.Core) + fmt.Sprintf(format, args...))
}

// signal wakes whatever context waits for a tick or trigger.
func (k *Kernel) signal() {
	close(k.wake)
	k.wake = make(chan struct{})
}

func (k *Kernel) event(ev Event) *eventState {
	if ev.k != k || int(ev.id) >= len(k.byID) {
		return nil
	}
	return k.byID[ev.id]
}

// Owns reports whether ev was created by this kernel's builder.
func (k *Kernel) Owns(ev Event) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.event(ev) != nil
}

// Config returns the effective configuration, defaults applied.
func (k *Kernel) Config() Config { return k.cfg }

// TickPeriod returns the duration of one tick.
func (k *Kernel) TickPeriod() time.Duration { return k.cfg.TickPeriod }

// Now returns the number of ticks processed since start.
func (k *Kernel) Now() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// Priority returns the priority of the running context.
func (k *Kernel) Priority() Priority {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.prio
}

// Halted reports whether the kernel stopped after a fatal error.
func (k *Kernel) Halted() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.phase == phaseHalted
}

// Tick is the timer interrupt: it advances time by one tick and marks every
// cyclic event due at this tick. Dispatching happens in the running context.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.phase != phaseRunning {
		return
	}
	k.tick()
	k.signal()
}

func (k *Kernel) tick() {
	now := k.ticks
	for _, ev := range k.events {
		if ev.cycle == 0 || ev.due > now {
			continue
		}
		ev.due += ev.cycle
		k.trigger(ev, ev.param)
	}
	k.ticks++
}

// TickTo processes ticks until Now() reaches seq. Used to follow a HAL tick stream.
func (k *Kernel) TickTo(seq uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.phase != phaseRunning || k.ticks >= seq {
		return
	}
	for k.ticks < seq {
		k.tick()
	}
	k.signal()
}

// trigger records one activation of ev. It fails and counts an activation loss
// if the previous activation has not completed.
func (k *Kernel) trigger(ev *eventState, param uintptr) bool {
	if ev.phase != evIdle {
		satInc(&ev.loss)
		return false
	}
	ev.phase = evTriggered
	ev.pending = param
	return true
}

// TriggerEvent triggers ev from interrupt or foreign goroutine context. The
// activation is served by the running context at its next preemption point.
func (k *Kernel) TriggerEvent(ev Event, param uintptr) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.event(ev)
	if e == nil || k.phase != phaseRunning {
		return false
	}
	ok := k.trigger(e, param)
	k.signal()
	return ok
}

// ActivationLoss returns the number of lost activations of ev.
func (k *Kernel) ActivationLoss(ev Event) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.event(ev)
	if e == nil {
		return 0
	}
	return e.loss
}

// EventStats returns a snapshot of every event in creation order.
func (k *Kernel) EventStats() []EventStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]EventStats, 0, len(k.byID))
	for _, e := range k.byID {
		out = append(out, EventStats{
			ID:             int(e.id),
			Priority:       e.prio,
			Cycle:          time.Duration(e.cycle) * k.cfg.TickPeriod,
			ActivationLoss: e.loss,
		})
	}
	return out
}

// Step serves all pending activations on the calling goroutine, which acts as
// the idle context, and returns once nothing is pending.
func (k *Kernel) Step() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.dispatch()
}

// Run is the idle loop. It serves activations as they become pending and
// returns when ctx is done or the kernel halted. The time spent outside the
// idle wait is reported by SystemLoad.
func (k *Kernel) Run(ctx context.Context) error {
	clock := k.cfg.Clock
	k.mu.Lock()
	k.load.begin(clock(), k.cfg.LoadWindow)
	k.mu.Unlock()
	for {
		k.mu.Lock()
		if k.phase == phaseHalted {
			k.mu.Unlock()
			return ErrKernelHalted
		}
		k.dispatch()
		w := k.wake
		idleFrom := clock()
		k.mu.Unlock()

		if k.cfg.Idle != nil {
			k.cfg.Idle()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w:
		}

		k.mu.Lock()
		k.load.idleSpan(idleFrom, clock())
		k.mu.Unlock()
	}
}
