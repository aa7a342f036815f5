package kernel

// Start validates the configuration, runs the init tasks and starts serving
// events. On any failure the kernel stays halted: no task of the regular schedule
// ever runs and every later call to Start returns the same error.
func (b *Builder) Start() (*Kernel, error) {
	k := b.k
	k.mu.Lock()
	defer k.mu.Unlock()

	switch k.phase {
	case phaseConfig:
	case phaseHalted:
		return nil, k.startErr
	default:
		return nil, ErrConfigurationOfRunningKernel
	}

	if err := k.validate(); err != nil {
		return nil, k.halt(err)
	}

	k.linkEvents()
	for pid := range k.procs {
		k.procs[pid].effective = k.effectiveRegions(PID(pid))
	}
	k.cfg.Backend.Apply(KernelPID, nil)

	k.phase = phaseInit
	if err := k.runInitTasks(); err != nil {
		return nil, k.halt(err)
	}

	k.phase = phaseRunning
	k.logf("started: %d events, %d tasks, max pid %d", len(k.events), k.nTasks, k.maxPIDInUse())
	return k, nil
}

func (k *Kernel) halt(err error) error {
	k.phase = phaseHalted
	k.startErr = err
	k.logf("start failed: %v", err)
	return err
}

func (k *Kernel) validate() error {
	if len(k.events) == 0 || k.nTasks == 0 {
		return ErrNoEventOrTask
	}

	for pid := PID(1); pid <= NumProcesses; pid++ {
		p := &k.procs[pid]
		if p.stackSize != 0 && !validStack(p.stackSize) {
			return ErrProcessStackInvalid
		}
		if p.init != nil && !p.configured {
			return ErrTaskBelongsToInvalidProcess
		}
	}
	for _, ev := range k.events {
		for _, t := range ev.tasks {
			if ut, ok := t.(UserTask); ok && !k.procs[ut.PID].configured {
				return ErrTaskBelongsToInvalidProcess
			}
		}
	}

	// The most trusted process must stay out of reach of the others.
	top := k.maxPIDInUse()
	for caller := PID(1); caller <= NumProcesses; caller++ {
		if top != KernelPID && k.runGranted(caller, top) {
			return ErrRunTaskBadPermission
		}
		if top != KernelPID && k.suspendGranted(caller, top) {
			return ErrSuspendProcessBadPermission
		}
	}

	for _, ev := range k.events {
		if len(ev.tasks) == 0 {
			return ErrEventWithoutTask
		}
		if ev.prio <= k.cfg.MaxLockablePriority {
			continue
		}
		for _, t := range ev.tasks {
			if ut, ok := t.(UserTask); ok && ut.PID != top {
				return ErrHighPrioTaskInLowPrivProcess
			}
		}
	}
	return nil
}

// runInitTasks runs the user init tasks in PID order, then the OS init task.
func (k *Kernel) runInitTasks() error {
	for pid := PID(1); pid <= NumProcesses; pid++ {
		t := k.procs[pid].init
		if t == nil {
			continue
		}
		ret, terr := k.runUser(*t, 0, false)
		if terr != nil || ret < 0 {
			k.logf("process %d: init task failed (%d)", pid, ret)
			return ErrInitTaskFailed
		}
	}

	if k.osInit != nil {
		var ret int32
		fn := k.osInit
		k.runOS(func(c *OSContext) { ret = fn(c) })
		if k.phase != phaseInit || ret < 0 {
			k.logf("OS init task failed (%d)", ret)
			return ErrInitTaskFailed
		}
	}
	return nil
}
