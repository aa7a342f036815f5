package supervisor

import (
	"strings"
	"sync"
	"testing"

	"warden/wardenos/kernel"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) count(sub string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.lines {
		if strings.Contains(s, sub) {
			n++
		}
	}
	return n
}

func TestPolicyVerdict(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		st     kernel.ProcessStats
		want   bool
	}{
		{"clean", Policy{Threshold: 2}, kernel.ProcessStats{}, false},
		{"below threshold", Policy{Threshold: 2}, kernel.ProcessStats{Failures: 1}, false},
		{"at threshold", Policy{Threshold: 2}, kernel.ProcessStats{Failures: 2}, true},
		{"threshold disabled", Policy{}, kernel.ProcessStats{Failures: 100}, false},
		{
			name:   "fatal cause",
			policy: Policy{Fatal: []kernel.Cause{kernel.CauseDeadline}},
			st: func() kernel.ProcessStats {
				var st kernel.ProcessStats
				st.Failures = 1
				st.ByCause[kernel.CauseDeadline] = 1
				return st
			}(),
			want: true,
		},
		{
			name:   "other cause",
			policy: Policy{Fatal: []kernel.Cause{kernel.CauseDeadline}},
			st: func() kernel.ProcessStats {
				var st kernel.ProcessStats
				st.Failures = 1
				st.ByCause[kernel.CauseUserAbort] = 1
				return st
			}(),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Verdict(tt.st) != ""; got != tt.want {
				t.Fatalf("Verdict() suspends = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSupervisorSuspendsFailingProcess(t *testing.T) {
	log := &lineLog{}
	var runs [kernel.NumProcesses + 1]int

	b := kernel.NewBuilder(kernel.Config{Logger: log})
	for pid := kernel.PID(1); pid <= 3; pid++ {
		if err := b.ConfigureProcess(pid, kernel.ProcessConfig{StackSize: 1024}); err != nil {
			t.Fatalf("ConfigureProcess(%d) err = %v", pid, err)
		}
	}
	for _, pid := range []kernel.PID{1, 2} {
		if err := b.GrantSuspendProcess(3, pid); err != nil {
			t.Fatalf("GrantSuspendProcess(3, %d) err = %v", pid, err)
		}
	}

	work, err := b.CreateEvent(kernel.EventConfig{Priority: 2})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}
	check, err := b.CreateEvent(kernel.EventConfig{Priority: 11})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}

	sv := New(map[kernel.PID]Policy{
		1: {Threshold: 3},
		2: {Threshold: 3},
	}, log)

	if err := b.RegisterUserTask(work, func(*kernel.TaskContext, uintptr) int32 { runs[1]++; return -1 }, 1, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	if err := b.RegisterUserTask(work, func(*kernel.TaskContext, uintptr) int32 { runs[2]++; return 0 }, 2, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	if err := b.RegisterUserTask(check, sv.Task, 3, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}

	for i := 0; i < 6; i++ {
		k.TriggerEvent(work, 0)
		k.Step()
		k.TriggerEvent(check, 0)
		k.Step()
	}

	if !k.IsProcessSuspended(1) {
		t.Fatalf("process 1 not suspended")
	}
	if k.IsProcessSuspended(2) {
		t.Fatalf("healthy process 2 suspended")
	}
	if runs[1] != 3 || runs[2] != 6 {
		t.Fatalf("runs = %v, want process 1 three times and process 2 six times", runs)
	}
	if got := k.ActivationLoss(work); got != 3 {
		t.Fatalf("ActivationLoss(work) = %d, want 3", got)
	}
	if got := k.TaskFailures(3); got != 0 {
		t.Fatalf("supervisor failures = %d, want 0", got)
	}
	if sv.Cycles() != 6 {
		t.Fatalf("Cycles() = %d, want 6", sv.Cycles())
	}
	if r, ok := sv.Reason(1); !ok || !strings.Contains(r, "3 failures") {
		t.Fatalf("Reason(1) = %q, %v", r, ok)
	}
	if n := log.count("supervisor: process 1 suspended"); n != 1 {
		t.Fatalf("suspension logged %d times, want 1", n)
	}
}

func TestSupervisorWithoutGrantFails(t *testing.T) {
	log := &lineLog{}
	b := kernel.NewBuilder(kernel.Config{Logger: log})
	for pid := kernel.PID(1); pid <= 2; pid++ {
		if err := b.ConfigureProcess(pid, kernel.ProcessConfig{StackSize: 1024}); err != nil {
			t.Fatalf("ConfigureProcess(%d) err = %v", pid, err)
		}
	}
	ev, err := b.CreateEvent(kernel.EventConfig{Priority: 3})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}
	sv := New(map[kernel.PID]Policy{1: {Threshold: 1}}, log)
	if err := b.RegisterUserTask(ev, func(*kernel.TaskContext, uintptr) int32 { return -1 }, 1, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	if err := b.RegisterUserTask(ev, sv.Task, 2, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}

	k.TriggerEvent(ev, 0)
	k.Step()

	if k.IsProcessSuspended(1) {
		t.Fatalf("process 1 suspended without grant")
	}
	if got := k.TaskFailuresByCause(2, kernel.CauseUserAbort); got != 1 {
		t.Fatalf("supervisor failures = %d, want 1", got)
	}
	if log.count("permission denied") != 1 {
		t.Fatalf("permission error not logged")
	}
}

func TestOSTaskSupervisor(t *testing.T) {
	b := kernel.NewBuilder(kernel.Config{})
	if err := b.ConfigureProcess(1, kernel.ProcessConfig{StackSize: 512}); err != nil {
		t.Fatalf("ConfigureProcess() err = %v", err)
	}
	ev, err := b.CreateEvent(kernel.EventConfig{Priority: 1})
	if err != nil {
		t.Fatalf("CreateEvent() err = %v", err)
	}
	sv := New(map[kernel.PID]Policy{1: {Fatal: []kernel.Cause{kernel.CauseDIStorage}}}, nil)
	if err := b.RegisterUserTask(ev, func(c *kernel.TaskContext, _ uintptr) int32 {
		c.Raise(kernel.CauseDIStorage)
		return 0
	}, 1, 0); err != nil {
		t.Fatalf("RegisterUserTask() err = %v", err)
	}
	// OS tasks run first, so the check sees the previous activation's fault.
	if err := b.RegisterOSTask(ev, sv.OSTask); err != nil {
		t.Fatalf("RegisterOSTask() err = %v", err)
	}
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}

	k.TriggerEvent(ev, 0)
	k.Step()
	if k.IsProcessSuspended(1) {
		t.Fatalf("suspended before the fault was observed")
	}
	k.TriggerEvent(ev, 0)
	k.Step()
	if !k.IsProcessSuspended(1) {
		t.Fatalf("process 1 not suspended after fatal fault")
	}
	if got := k.TaskFailures(1); got != 1 {
		t.Fatalf("TaskFailures(1) = %d, want 1", got)
	}
}
