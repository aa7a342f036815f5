package kernel

import "time"

// Builder collects the static configuration of a kernel instance.
//
// All methods belong to the single-threaded initialization phase. Once Start has
// been called they fail with ErrConfigurationOfRunningKernel.
type Builder struct {
	k *Kernel
}

// NewBuilder returns a builder for a kernel with the given parameters.
func NewBuilder(cfg Config) *Builder {
	cfg = cfg.withDefaults()
	k := &Kernel{
		cfg:  cfg,
		log:  cfg.Logger,
		wake: make(chan struct{}),
	}
	k.procs[KernelPID].configured = true
	k.procs[KernelPID].stackSize = cfg.KernelStackSize
	return &Builder{k: k}
}

func (b *Builder) configurable() error {
	if b.k.phase != phaseConfig {
		b.k.logf("configuration call after start")
		return ErrConfigurationOfRunningKernel
	}
	return nil
}

func (b *Builder) ticks(d time.Duration) (uint64, bool) {
	if d < 0 || d%b.k.cfg.TickPeriod != 0 {
		return 0, false
	}
	t := uint64(d / b.k.cfg.TickPeriod)
	return t, t < maxTimingTicks
}

// CreateEvent adds an event and returns its handle.
func (b *Builder) CreateEvent(ec EventConfig) (Event, error) {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return Event{}, err
	}
	if len(k.byID) >= k.cfg.MaxEvents {
		return Event{}, ErrTooManyEvents
	}
	if ec.Priority < 1 || ec.Priority > k.cfg.MaxTaskPriority {
		return Event{}, ErrInvalidEventPriority
	}
	cycle, ok1 := b.ticks(ec.Cycle)
	first, ok2 := b.ticks(ec.FirstActivation)
	if !ok1 || !ok2 || (cycle == 0 && first != 0) {
		return Event{}, ErrBadEventTiming
	}
	if ec.MinTrigger > NotUserTriggerable {
		return Event{}, ErrEventNotTriggerable
	}

	ev := &eventState{
		id:         uint8(len(k.byID)),
		prio:       ec.Priority,
		cycle:      cycle,
		due:        first,
		minTrigger: ec.MinTrigger,
		param:      ec.Param,
	}
	k.byID = append(k.byID, ev)

	// Keep events ordered by decreasing priority, creation order within a priority.
	at := len(k.events)
	for i, e := range k.events {
		if e.prio < ev.prio {
			at = i
			break
		}
	}
	k.events = append(k.events, nil)
	copy(k.events[at+1:], k.events[at:])
	k.events[at] = ev

	return Event{id: ev.id, k: k}, nil
}

// RegisterTask binds t to ev. OS tasks are placed ahead of all user tasks of the
// event; otherwise tasks keep registration order.
func (b *Builder) RegisterTask(ev Event, t Task) error {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return err
	}
	e := k.event(ev)
	if e == nil {
		return ErrBadEventID
	}
	if err := b.checkTask(t); err != nil {
		return err
	}
	if k.nTasks >= k.cfg.MaxTasks {
		return ErrTooManyTasks
	}

	at := len(e.tasks)
	if _, ok := t.(OSTask); ok {
		at = 0
		for at < len(e.tasks) {
			if _, isOS := e.tasks[at].(OSTask); !isOS {
				break
			}
			at++
		}
	}
	e.tasks = append(e.tasks, nil)
	copy(e.tasks[at+1:], e.tasks[at:])
	e.tasks[at] = t
	k.nTasks++
	return nil
}

// RegisterOSTask is shorthand for RegisterTask(ev, OSTask{Fn: fn}).
func (b *Builder) RegisterOSTask(ev Event, fn OSTaskFunc) error {
	return b.RegisterTask(ev, OSTask{Fn: fn})
}

// RegisterUserTask is shorthand for RegisterTask with a UserTask.
func (b *Builder) RegisterUserTask(ev Event, fn UserTaskFunc, pid PID, budget time.Duration) error {
	return b.RegisterTask(ev, UserTask{Fn: fn, PID: pid, Budget: budget})
}

func (b *Builder) checkTask(t Task) error {
	switch t := t.(type) {
	case OSTask:
		if t.Fn == nil {
			return ErrBadTaskFunction
		}
	case UserTask:
		if t.PID == KernelPID || t.PID > NumProcesses {
			return ErrBadProcessID
		}
		if t.Fn == nil {
			return ErrBadTaskFunction
		}
		if t.Budget < 0 || t.Budget > b.k.cfg.MaxTaskBudget {
			return ErrTaskBudgetTooBig
		}
	default:
		return ErrBadTaskFunction
	}
	return nil
}

// RegisterInitTask sets the init task of the process t.PID. It runs once during
// Start, before any event is served.
func (b *Builder) RegisterInitTask(t UserTask) error {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return err
	}
	if err := b.checkTask(t); err != nil {
		return err
	}
	p := &k.procs[t.PID]
	if p.init != nil {
		return ErrInitTaskRedefined
	}
	p.init = &t
	return nil
}

// RegisterOSInitTask sets the kernel's init task. It runs after all user init tasks.
func (b *Builder) RegisterOSInitTask(fn func(c *OSContext) int32) error {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return err
	}
	if fn == nil {
		return ErrBadTaskFunction
	}
	if k.osInit != nil {
		return ErrInitTaskRedefined
	}
	k.osInit = fn
	return nil
}

// ConfigureProcess sets stack and memory layout of a user process. A process
// without configuration cannot own tasks.
func (b *Builder) ConfigureProcess(pid PID, pc ProcessConfig) error {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return err
	}
	if pid == KernelPID || pid > NumProcesses {
		return ErrBadProcessID
	}
	for _, r := range pc.Regions {
		if !r.valid() {
			return ErrBadArgument
		}
	}
	p := &k.procs[pid]
	p.configured = pc.StackSize != 0
	p.stackSize = pc.StackSize
	p.regions = append([]Region(nil), pc.Regions...)
	return nil
}

// GrantRunTask allows tasks of caller to run tasks in callee via RunTask.
func (b *Builder) GrantRunTask(caller, callee PID) error {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return err
	}
	if caller == KernelPID || caller > NumProcesses || callee == KernelPID || callee > NumProcesses || caller == callee {
		return ErrBadProcessID
	}
	k.runGrant[caller] |= 1 << callee
	return nil
}

// GrantSuspendProcess allows tasks of caller to suspend callee.
func (b *Builder) GrantSuspendProcess(caller, callee PID) error {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := b.configurable(); err != nil {
		return err
	}
	if caller == KernelPID || caller > NumProcesses || callee == KernelPID || callee > NumProcesses {
		return ErrBadProcessID
	}
	k.suspendGrant[caller] |= 1 << callee
	return nil
}
