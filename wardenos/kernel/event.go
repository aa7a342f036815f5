package kernel

import "time"

// Event is an opaque handle to a configured event.
//
// Handles are only produced by Builder.CreateEvent and stay bound to the kernel
// that created them; the zero value is invalid.
type Event struct {
	id uint8
	k  *Kernel
}

// ID returns the creation index of the event (0..N-1).
func (e Event) ID() int { return int(e.id) }

// Valid reports whether the handle was produced by a builder.
func (e Event) Valid() bool { return e.k != nil }

// EventConfig describes an event to create.
type EventConfig struct {
	// Cycle is the activation period. Zero makes the event non-cyclic: it only
	// fires when triggered by software or an interrupt.
	Cycle time.Duration
	// FirstActivation is the phase of the first cyclic activation after start.
	FirstActivation time.Duration

	Priority Priority

	// MinTrigger is the lowest user PID allowed to trigger the event from a task.
	// Use NotUserTriggerable to reserve triggering to OS code.
	MinTrigger PID

	// Param is passed to the tasks of cyclic activations.
	Param uintptr
}

type eventPhase uint8

const (
	evIdle eventPhase = iota
	evTriggered
	evInProgress
)

type eventState struct {
	id         uint8
	prio       Priority
	cycle      uint64
	due        uint64
	minTrigger PID
	param      uintptr

	phase   eventPhase
	pending uintptr
	loss    uint32

	tasks []Task

	// next is the scan position after this event has been served: the following
	// event for the first of a priority group, else the first of its group.
	next int
}

// EventStats is a snapshot of one event's accounting.
type EventStats struct {
	ID             int
	Priority       Priority
	Cycle          time.Duration
	ActivationLoss uint32
}

// OSTaskFunc is the body of a kernel task. It runs without memory protection.
type OSTaskFunc func(c *OSContext, param uintptr)

// UserTaskFunc is the body of a user task. A negative result is a logical failure
// and is counted against the task's process.
type UserTaskFunc func(c *TaskContext, param uintptr) int32

// Task is either an OSTask or a UserTask.
type Task interface {
	isTask()
}

// OSTask runs in process 0 with no budget.
type OSTask struct {
	Fn OSTaskFunc
}

// UserTask runs in a user process. Budget 0 disables deadline monitoring.
type UserTask struct {
	Fn     UserTaskFunc
	PID    PID
	Budget time.Duration
}

func (OSTask) isTask()   {}
func (UserTask) isTask() {}

func satInc(v *uint32) {
	if *v != ^uint32(0) {
		*v++
	}
}
