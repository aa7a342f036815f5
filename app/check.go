package app

import (
	"fmt"

	"warden/hal"
	"warden/wardenos/kernel"
)

// Check builds and starts the kernels of cfg without running them, so every
// configuration error the kernel would report shows up. It returns one line
// per event.
func Check(cfg Config) ([]string, error) {
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var h nullHAL
	s := &System{h: h, cfg: cfg, demo: newDemo(cfg, h)}
	kernels, err := s.build()
	if err != nil {
		return nil, err
	}
	var out []string
	for core, k := range kernels {
		for _, ev := range k.EventStats() {
			cycle := "triggered"
			if ev.Cycle > 0 {
				cycle = "every " + ev.Cycle.String()
			}
			out = append(out, fmt.Sprintf("core %d event %d: prio %d, %s", core, ev.ID, ev.Priority, cycle))
		}
		for pid := kernel.PID(1); pid <= kernel.NumProcesses; pid++ {
			if st := k.Stats(pid); st.Configured {
				out = append(out, fmt.Sprintf("core %d process %d: stack %d bytes", core, pid, st.StackSize))
			}
		}
	}
	return out, nil
}

type nullHAL struct{}

func (nullHAL) Logger() hal.Logger   { return nullLogger{} }
func (nullHAL) LED() hal.LED         { return nullLED{} }
func (nullHAL) Display() hal.Display { return nil }
func (nullHAL) Input() hal.Input     { return nil }
func (nullHAL) Time() hal.Time       { return nil }
func (nullHAL) Serial() hal.Serial   { return nil }
func (nullHAL) MPU() hal.MPU         { return nil }

type nullLogger struct{}

func (nullLogger) WriteLineString(string) {}
func (nullLogger) WriteLineBytes([]byte)  {}

type nullLED struct{}

func (nullLED) High() {}
func (nullLED) Low()  {}
