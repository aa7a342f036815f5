package kernel

import (
	"sync"
	"testing"
)

type recorder struct {
	mu  sync.Mutex
	seq []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = append(r.seq, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seq...)
}

func equalSeq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// newTestBuilder configures processes 1..3, each owning 4 KiB at pid*0x1000.
func newTestBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	b := NewBuilder(cfg)
	for pid := PID(1); pid <= 3; pid++ {
		err := b.ConfigureProcess(pid, ProcessConfig{
			StackSize: 1024,
			Regions:   []Region{{Base: uintptr(pid) * 0x1000, Size: 0x1000, Perm: PermRead | PermWrite}},
		})
		if err != nil {
			t.Fatalf("ConfigureProcess(%d) err = %v", pid, err)
		}
	}
	return b
}

func mustEvent(t *testing.T, b *Builder, ec EventConfig) Event {
	t.Helper()
	ev, err := b.CreateEvent(ec)
	if err != nil {
		t.Fatalf("CreateEvent(%+v) err = %v", ec, err)
	}
	return ev
}

func mustRegister(t *testing.T, b *Builder, ev Event, task Task) {
	t.Helper()
	if err := b.RegisterTask(ev, task); err != nil {
		t.Fatalf("RegisterTask() err = %v", err)
	}
}

func mustStart(t *testing.T, b *Builder) *Kernel {
	t.Helper()
	k, err := b.Start()
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	return k
}

func nopOS(*OSContext, uintptr) {}

func nopUser(*TaskContext, uintptr) int32 { return 0 }

type backendCall struct {
	pid     PID
	regions int
}

type recordingBackend struct {
	mu    sync.Mutex
	calls []backendCall
}

func (b *recordingBackend) Apply(pid PID, regions []Region) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := -1
	if regions != nil {
		n = len(regions)
	}
	b.calls = append(b.calls, backendCall{pid: pid, regions: n})
}

func (b *recordingBackend) get() []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendCall(nil), b.calls...)
}
