// Package report prints the failure accounting of a kernel instance to a log
// and to a terminal on the display.
package report

import (
	"fmt"
	"strings"
	"sync"

	"warden/hal"
	"warden/wardenos/kernel"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

const (
	fontHeight = 10
	fontOffset = 6
)

// Reporter formats process and event counters.
type Reporter struct {
	k   *kernel.Kernel
	log kernel.Logger

	mu   sync.Mutex
	disp *fbDisplay
	term *tinyterm.Terminal
	runs uint64
}

// New returns a reporter for k. display may be nil, lines then only go to out.
func New(k *kernel.Kernel, out kernel.Logger, display hal.Display) *Reporter {
	r := &Reporter{k: k, log: out}
	if display == nil {
		return r
	}
	fb := display.Framebuffer()
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return r
	}
	fb.ClearRGB(0, 0, 0)
	r.disp = newFBDisplay(fb)
	r.term = tinyterm.NewTerminal(r.disp)
	r.term.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: fontHeight,
		FontOffset: fontOffset,
	})
	return r
}

// Lines returns one report: the CPU load once it has been measured, a line
// per configured process, then a line per event that lost activations.
func (r *Reporter) Lines() []string {
	now := r.k.Now()
	var out []string
	if load, ok := r.k.SystemLoad(); ok {
		out = append(out, loadLine(now, load))
	}
	for pid := kernel.KernelPID; pid <= kernel.NumProcesses; pid++ {
		st := r.k.Stats(pid)
		if !st.Configured {
			continue
		}
		out = append(out, processLine(now, st))
	}
	for _, ev := range r.k.EventStats() {
		if ev.ActivationLoss == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("t=%d event %d (prio %d): %d activations lost", now, ev.ID, ev.Priority, ev.ActivationLoss))
	}
	return out
}

func loadLine(now uint64, permille uint16) string {
	return fmt.Sprintf("t=%d cpu load %d.%d%%", now, permille/10, permille%10)
}

func processLine(now uint64, st kernel.ProcessStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%d pid %d: %d failures", now, st.PID, st.Failures)
	if st.Failures > 0 {
		var causes []string
		for c := kernel.Cause(0); c < kernel.NumCauses; c++ {
			if n := st.ByCause[c]; n > 0 {
				causes = append(causes, fmt.Sprintf("%s %d", c, n))
			}
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(causes, ", "))
	}
	fmt.Fprintf(&b, ", stack reserve %d/%d", st.StackReserve, st.StackSize)
	if st.UnbalancedPCP > 0 {
		fmt.Fprintf(&b, ", %d unbalanced PCP", st.UnbalancedPCP)
	}
	if st.Suspended {
		b.WriteString(", suspended")
	}
	return b.String()
}

// Print writes one report.
func (r *Reporter) Print() {
	lines := r.Lines()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	for _, l := range lines {
		if r.log != nil {
			r.log.WriteLineString("report: " + l)
		}
		if r.term != nil {
			fmt.Fprintf(r.term, "\n%s", l)
		}
	}
	if r.disp != nil {
		_ = r.disp.Display()
	}
}

// Task is the reporter as an OS task, typically bound to a slow cyclic event.
func (r *Reporter) Task(c *kernel.OSContext, _ uintptr) {
	r.Print()
}

// Runs returns how many reports have been printed.
func (r *Reporter) Runs() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}
