package kernel

import (
	"errors"
	"testing"
	"time"
)

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name string
		ec   EventConfig
		want error
	}{
		{"ok cyclic", EventConfig{Cycle: 10 * time.Millisecond, FirstActivation: 3 * time.Millisecond, Priority: 1}, nil},
		{"ok triggered", EventConfig{Priority: 11, MinTrigger: NotUserTriggerable}, nil},
		{"priority zero", EventConfig{Priority: 0}, ErrInvalidEventPriority},
		{"priority too high", EventConfig{Priority: 12}, ErrInvalidEventPriority},
		{"offset without cycle", EventConfig{FirstActivation: time.Millisecond, Priority: 1}, ErrBadEventTiming},
		{"fraction of tick", EventConfig{Cycle: 1500 * time.Microsecond, Priority: 1}, ErrBadEventTiming},
		{"negative cycle", EventConfig{Cycle: -time.Millisecond, Priority: 1}, ErrBadEventTiming},
		{"cycle too long", EventConfig{Cycle: (1 << 30) * time.Millisecond, Priority: 1}, ErrBadEventTiming},
		{"trigger pid out of range", EventConfig{Priority: 1, MinTrigger: NotUserTriggerable + 1}, ErrEventNotTriggerable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(Config{})
			_, err := b.CreateEvent(tt.ec)
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateEvent() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateEventTableFull(t *testing.T) {
	b := NewBuilder(Config{MaxEvents: 2})
	for i := 0; i < 2; i++ {
		ev := mustEvent(t, b, EventConfig{Priority: 1})
		if ev.ID() != i {
			t.Fatalf("ID() = %d, want %d", ev.ID(), i)
		}
	}
	if _, err := b.CreateEvent(EventConfig{Priority: 1}); err != ErrTooManyEvents {
		t.Fatalf("CreateEvent() err = %v, want %v", err, ErrTooManyEvents)
	}
}

func TestEventIDsFollowCreationNotPriority(t *testing.T) {
	b := newTestBuilder(t, Config{})
	low := mustEvent(t, b, EventConfig{Priority: 1})
	high := mustEvent(t, b, EventConfig{Priority: 9})
	mid := mustEvent(t, b, EventConfig{Priority: 5})
	for _, ev := range []Event{low, high, mid} {
		mustRegister(t, b, ev, OSTask{Fn: nopOS})
	}
	k := mustStart(t, b)

	stats := k.EventStats()
	want := []Priority{1, 9, 5}
	for i, st := range stats {
		if st.ID != i || st.Priority != want[i] {
			t.Fatalf("EventStats()[%d] = %+v, want id %d priority %d", i, st, i, want[i])
		}
	}
}

func TestRegisterTaskValidation(t *testing.T) {
	b := newTestBuilder(t, Config{MaxTasks: 2})
	ev := mustEvent(t, b, EventConfig{Priority: 1})
	foreign := mustEvent(t, NewBuilder(Config{}), EventConfig{Priority: 1})

	tests := []struct {
		name string
		ev   Event
		task Task
		want error
	}{
		{"zero handle", Event{}, OSTask{Fn: nopOS}, ErrBadEventID},
		{"foreign handle", foreign, OSTask{Fn: nopOS}, ErrBadEventID},
		{"nil os function", ev, OSTask{}, ErrBadTaskFunction},
		{"nil user function", ev, UserTask{PID: 1}, ErrBadTaskFunction},
		{"user task in kernel", ev, UserTask{Fn: nopUser, PID: KernelPID}, ErrBadProcessID},
		{"pid out of range", ev, UserTask{Fn: nopUser, PID: NumProcesses + 1}, ErrBadProcessID},
		{"negative budget", ev, UserTask{Fn: nopUser, PID: 1, Budget: -1}, ErrTaskBudgetTooBig},
		{"budget too big", ev, UserTask{Fn: nopUser, PID: 1, Budget: 1 << 62}, ErrTaskBudgetTooBig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.RegisterTask(tt.ev, tt.task); err != tt.want {
				t.Fatalf("RegisterTask() err = %v, want %v", err, tt.want)
			}
		})
	}

	mustRegister(t, b, ev, OSTask{Fn: nopOS})
	mustRegister(t, b, ev, UserTask{Fn: nopUser, PID: 1})
	if err := b.RegisterTask(ev, OSTask{Fn: nopOS}); err != ErrTooManyTasks {
		t.Fatalf("RegisterTask() on full table err = %v, want %v", err, ErrTooManyTasks)
	}
}

func TestConfigurationAfterStartFails(t *testing.T) {
	b := newTestBuilder(t, Config{})
	ev := mustEvent(t, b, EventConfig{Priority: 1})
	mustRegister(t, b, ev, OSTask{Fn: nopOS})
	mustStart(t, b)

	if _, err := b.CreateEvent(EventConfig{Priority: 1}); err != ErrConfigurationOfRunningKernel {
		t.Fatalf("CreateEvent() err = %v, want %v", err, ErrConfigurationOfRunningKernel)
	}
	if err := b.RegisterOSTask(ev, nopOS); err != ErrConfigurationOfRunningKernel {
		t.Fatalf("RegisterOSTask() err = %v, want %v", err, ErrConfigurationOfRunningKernel)
	}
	if err := b.GrantRunTask(1, 2); err != ErrConfigurationOfRunningKernel {
		t.Fatalf("GrantRunTask() err = %v, want %v", err, ErrConfigurationOfRunningKernel)
	}
	if _, err := b.Start(); err != ErrConfigurationOfRunningKernel {
		t.Fatalf("second Start() err = %v, want %v", err, ErrConfigurationOfRunningKernel)
	}
}

func TestInitTaskRedefined(t *testing.T) {
	b := newTestBuilder(t, Config{})
	if err := b.RegisterInitTask(UserTask{Fn: nopUser, PID: 1}); err != nil {
		t.Fatalf("RegisterInitTask() err = %v", err)
	}
	if err := b.RegisterInitTask(UserTask{Fn: nopUser, PID: 1}); err != ErrInitTaskRedefined {
		t.Fatalf("RegisterInitTask() again err = %v, want %v", err, ErrInitTaskRedefined)
	}
	init := func(*OSContext) int32 { return 0 }
	if err := b.RegisterOSInitTask(init); err != nil {
		t.Fatalf("RegisterOSInitTask() err = %v", err)
	}
	if err := b.RegisterOSInitTask(init); err != ErrInitTaskRedefined {
		t.Fatalf("RegisterOSInitTask() again err = %v, want %v", err, ErrInitTaskRedefined)
	}
}

func TestGrantValidation(t *testing.T) {
	b := newTestBuilder(t, Config{})
	if err := b.GrantRunTask(1, 1); err != ErrBadProcessID {
		t.Fatalf("GrantRunTask(1, 1) err = %v, want %v", err, ErrBadProcessID)
	}
	if err := b.GrantRunTask(0, 1); err != ErrBadProcessID {
		t.Fatalf("GrantRunTask(0, 1) err = %v, want %v", err, ErrBadProcessID)
	}
	if err := b.GrantSuspendProcess(2, KernelPID); err != ErrBadProcessID {
		t.Fatalf("GrantSuspendProcess(2, 0) err = %v, want %v", err, ErrBadProcessID)
	}
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, b *Builder)
		want  error
	}{
		{
			name:  "nothing registered",
			setup: func(t *testing.T, b *Builder) {},
			want:  ErrNoEventOrTask,
		},
		{
			name: "event without task",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 1}), OSTask{Fn: nopOS})
				mustEvent(t, b, EventConfig{Priority: 2})
			},
			want: ErrEventWithoutTask,
		},
		{
			name: "invalid stack",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 1}), OSTask{Fn: nopOS})
				if err := b.ConfigureProcess(4, ProcessConfig{StackSize: 1001}); err != nil {
					t.Fatalf("ConfigureProcess() err = %v", err)
				}
			},
			want: ErrProcessStackInvalid,
		},
		{
			name: "task in unconfigured process",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 1}), UserTask{Fn: nopUser, PID: 4})
			},
			want: ErrTaskBelongsToInvalidProcess,
		},
		{
			name: "run task grant to top process",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 1}), OSTask{Fn: nopOS})
				if err := b.GrantRunTask(1, 3); err != nil {
					t.Fatalf("GrantRunTask() err = %v", err)
				}
			},
			want: ErrRunTaskBadPermission,
		},
		{
			name: "suspend grant to top process",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 1}), OSTask{Fn: nopOS})
				if err := b.GrantSuspendProcess(2, 3); err != nil {
					t.Fatalf("GrantSuspendProcess() err = %v", err)
				}
			},
			want: ErrSuspendProcessBadPermission,
		},
		{
			name: "non lockable priority in low privileged process",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 11}), UserTask{Fn: nopUser, PID: 2})
			},
			want: ErrHighPrioTaskInLowPrivProcess,
		},
		{
			name: "failing init task",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 1}), OSTask{Fn: nopOS})
				err := b.RegisterInitTask(UserTask{PID: 2, Fn: func(*TaskContext, uintptr) int32 { return -1 }})
				if err != nil {
					t.Fatalf("RegisterInitTask() err = %v", err)
				}
			},
			want: ErrInitTaskFailed,
		},
		{
			name: "high priority task in top process",
			setup: func(t *testing.T, b *Builder) {
				mustRegister(t, b, mustEvent(t, b, EventConfig{Priority: 11}), UserTask{Fn: nopUser, PID: 3})
				if err := b.GrantSuspendProcess(3, 1); err != nil {
					t.Fatalf("GrantSuspendProcess() err = %v", err)
				}
			},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t, Config{})
			tt.setup(t, b)
			k, err := b.Start()
			if err != tt.want {
				t.Fatalf("Start() err = %v, want %v", err, tt.want)
			}
			if tt.want == nil {
				if k == nil {
					t.Fatalf("Start() kernel = nil")
				}
				return
			}
			if k != nil {
				t.Fatalf("Start() kernel != nil on error")
			}
			if _, err := b.Start(); err != tt.want {
				t.Fatalf("second Start() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInitTasksRunInProcessOrderThenKernel(t *testing.T) {
	var rec recorder
	b := newTestBuilder(t, Config{})
	ev := mustEvent(t, b, EventConfig{Cycle: time.Millisecond, Priority: 1})
	mustRegister(t, b, ev, OSTask{Fn: func(*OSContext, uintptr) { rec.add("cyclic") }})

	for _, pid := range []PID{3, 1, 2} {
		pid := pid
		err := b.RegisterInitTask(UserTask{PID: pid, Fn: func(c *TaskContext, _ uintptr) int32 {
			if c.PID() != pid {
				t.Errorf("PID() = %d, want %d", c.PID(), pid)
			}
			rec.add(string(rune('0' + pid)))
			return 0
		}})
		if err != nil {
			t.Fatalf("RegisterInitTask() err = %v", err)
		}
	}
	if err := b.RegisterOSInitTask(func(*OSContext) int32 { rec.add("0"); return 0 }); err != nil {
		t.Fatalf("RegisterOSInitTask() err = %v", err)
	}

	k := mustStart(t, b)
	if got, want := rec.get(), []string{"1", "2", "3", "0"}; !equalSeq(got, want) {
		t.Fatalf("init order = %v, want %v", got, want)
	}

	k.Tick()
	k.Step()
	if got := rec.get(); got[len(got)-1] != "cyclic" {
		t.Fatalf("cyclic task did not run after start: %v", got)
	}
}

func TestFailedStartNeverDispatches(t *testing.T) {
	ran := false
	b := newTestBuilder(t, Config{})
	ev := mustEvent(t, b, EventConfig{Cycle: time.Millisecond, Priority: 1})
	mustRegister(t, b, ev, OSTask{Fn: func(*OSContext, uintptr) { ran = true }})
	if err := b.RegisterOSInitTask(func(*OSContext) int32 { return -1 }); err != nil {
		t.Fatalf("RegisterOSInitTask() err = %v", err)
	}
	if _, err := b.Start(); err != ErrInitTaskFailed {
		t.Fatalf("Start() err = %v, want %v", err, ErrInitTaskFailed)
	}

	b.k.Tick()
	b.k.Step()
	if ran {
		t.Fatalf("task ran on a kernel that failed to start")
	}
	if !b.k.Halted() {
		t.Fatalf("Halted() = false after failed start")
	}
}
