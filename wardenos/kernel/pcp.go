package kernel

// Elevator is the capability to raise the scheduling priority of the running
// context. Both *TaskContext and *OSContext provide it, with their own rules
// for invalid ceilings.
type Elevator interface {
	SuspendAllTasksByPriority(ceiling Priority) (Priority, error)
	ResumeAllTasksByPriority(prev Priority) error
}

var (
	_ Elevator = (*TaskContext)(nil)
	_ Elevator = (*OSContext)(nil)
)

// Section is an entered priority ceiling critical section.
type Section struct {
	e    Elevator
	prev Priority
	done bool
}

// Enter raises the priority of the context behind e to ceiling. The returned
// section must be left by the same activation, sections nest in LIFO order.
func Enter(e Elevator, ceiling Priority) (*Section, error) {
	prev, err := e.SuspendAllTasksByPriority(ceiling)
	if err != nil {
		return nil, err
	}
	return &Section{e: e, prev: prev}, nil
}

// Leave restores the priority in effect before Enter. Extra calls are no-ops.
func (s *Section) Leave() error {
	if s == nil || s.done {
		return nil
	}
	s.done = true
	return s.e.ResumeAllTasksByPriority(s.prev)
}

// Shared guards a value shared between tasks of different priorities. The value
// is only reachable inside Access, which holds the ceiling for the duration of fn.
// The ceiling must be at least the priority of every task that accesses it.
type Shared[T any] struct {
	ceiling Priority
	v       T
}

// NewShared returns v guarded by the given ceiling priority.
func NewShared[T any](ceiling Priority, v T) *Shared[T] {
	return &Shared[T]{ceiling: ceiling, v: v}
}

// Ceiling returns the ceiling priority of s.
func (s *Shared[T]) Ceiling() Priority { return s.ceiling }

// Access runs fn with exclusive access to the guarded value.
func (s *Shared[T]) Access(e Elevator, fn func(v *T)) error {
	sec, err := Enter(e, s.ceiling)
	if err != nil {
		return err
	}
	defer sec.Leave()
	fn(&s.v)
	return nil
}
