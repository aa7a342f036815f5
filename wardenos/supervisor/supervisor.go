// Package supervisor implements the recovery policy: it watches the failure
// accounting of the kernel and takes misbehaving processes out of service.
//
// The kernel only counts failures. Whether a count is acceptable is decided here,
// in a task of the most trusted process (or in an OS task).
package supervisor

import (
	"fmt"
	"sort"
	"sync"

	"warden/wardenos/kernel"
)

// Policy decides when a process is suspended.
type Policy struct {
	// Threshold suspends the process once its total failure count reaches it.
	// Zero disables the threshold.
	Threshold uint32
	// Fatal causes suspend the process on their first occurrence.
	Fatal []kernel.Cause
}

// Controller is the part of a task context the supervisor needs. Both
// *kernel.TaskContext and *kernel.OSContext implement it.
type Controller interface {
	Stats(pid kernel.PID) kernel.ProcessStats
	SuspendProcess(pid kernel.PID) error
}

var (
	_ Controller = (*kernel.TaskContext)(nil)
	_ Controller = (*kernel.OSContext)(nil)
)

// Supervisor applies a Policy per process.
type Supervisor struct {
	log kernel.Logger

	pids     []kernel.PID
	policies map[kernel.PID]Policy

	mu      sync.Mutex
	cycles  uint64
	stopped map[kernel.PID]string
}

// New returns a supervisor for the given policies. Processes without a policy are
// never suspended.
func New(policies map[kernel.PID]Policy, log kernel.Logger) *Supervisor {
	s := &Supervisor{
		log:      log,
		policies: make(map[kernel.PID]Policy, len(policies)),
		stopped:  make(map[kernel.PID]string),
	}
	for pid, p := range policies {
		s.policies[pid] = p
		s.pids = append(s.pids, pid)
	}
	sort.Slice(s.pids, func(i, j int) bool { return s.pids[i] < s.pids[j] })
	return s
}

// Verdict returns the reason st violates p, or "" if it does not.
func (p Policy) Verdict(st kernel.ProcessStats) string {
	for _, c := range p.Fatal {
		if c < kernel.NumCauses && st.ByCause[c] > 0 {
			return fmt.Sprintf("fatal failure: %s", c)
		}
	}
	if p.Threshold > 0 && st.Failures >= p.Threshold {
		return fmt.Sprintf("%d failures", st.Failures)
	}
	return ""
}

// Check evaluates every policy once and suspends the violating processes. It
// returns the processes suspended by this call.
func (s *Supervisor) Check(c Controller) ([]kernel.PID, error) {
	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()

	var out []kernel.PID
	for _, pid := range s.pids {
		st := c.Stats(pid)
		if !st.Configured {
			continue
		}
		if st.Suspended {
			s.note(pid, "suspended elsewhere")
			continue
		}
		reason := s.policies[pid].Verdict(st)
		if reason == "" {
			continue
		}
		if err := c.SuspendProcess(pid); err != nil {
			return out, fmt.Errorf("supervisor: suspend process %d: %w", pid, err)
		}
		s.note(pid, reason)
		out = append(out, pid)
	}
	return out, nil
}

func (s *Supervisor) note(pid kernel.PID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stopped[pid]; ok {
		return
	}
	s.stopped[pid] = reason
	if s.log != nil {
		s.log.WriteLineString(fmt.Sprintf("supervisor: process %d suspended (%s)", pid, reason))
	}
}

// Task is the supervisor as a user task. Register it in the most trusted process
// with suspend grants on every supervised process.
func (s *Supervisor) Task(c *kernel.TaskContext, _ uintptr) int32 {
	if _, err := s.Check(c); err != nil {
		if s.log != nil {
			s.log.WriteLineString(err.Error())
		}
		return -1
	}
	return 0
}

// OSTask is the supervisor as an OS task.
func (s *Supervisor) OSTask(c *kernel.OSContext, _ uintptr) {
	if _, err := s.Check(c); err != nil && s.log != nil {
		s.log.WriteLineString(err.Error())
	}
}

// Cycles returns how often the policies have been evaluated.
func (s *Supervisor) Cycles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Reason returns why pid was taken out of service, if it was.
func (s *Supervisor) Reason(pid kernel.PID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.stopped[pid]
	return r, ok
}
