package app

import (
	"context"
	"fmt"
	"sync"

	"warden/hal"
	"warden/internal/buildinfo"
	"warden/wardenos/kernel"
	"warden/wardenos/report"
	"warden/wardenos/smp"
)

// System is the running demo: one kernel per core plus the goroutines that
// feed them ticks and input.
type System struct {
	h    hal.HAL
	cfg  Config
	demo *demo
	smp  *smp.System

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// New initializes and starts the OS with default config.
func New(h hal.HAL) func() error {
	return NewWithConfig(h, DefaultConfig())
}

// NewWithConfig starts the OS and returns the per-frame step of the host loop.
// The step fails once the system has stopped, unless cfg.HoldOnHalt is set.
func NewWithConfig(h hal.HAL, cfg Config) func() error {
	s, err := Start(h, cfg)
	if err != nil {
		return func() error {
			if cfg.HoldOnHalt {
				return nil
			}
			return err
		}
	}
	return s.Step
}

// Run starts the OS and blocks forever (TinyGo/native entrypoint).
func Run(h hal.HAL) {
	RunWithConfig(h, DefaultConfig())
}

func RunWithConfig(h hal.HAL, cfg Config) {
	if s, err := Start(h, cfg); err == nil {
		<-s.done
	}
	select {}
}

// Start builds and starts the kernels and the goroutines driving them. A
// configuration error is shown on the display and returned.
func Start(h hal.HAL, cfg Config) (*System, error) {
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	installPanicHandler(h)

	s := &System{h: h, cfg: cfg, demo: newDemo(cfg, h), done: make(chan struct{})}
	kernels, err := s.build()
	if err != nil {
		showHalt(h, "Warden Start Failed", []string{err.Error()})
		return nil, err
	}
	s.smp = smp.New(kernels...)
	if len(kernels) > 1 {
		hb, err := s.smp.Bind(1, s.demo.heartbeatEv)
		if err != nil {
			return nil, fmt.Errorf("app: bind heartbeat: %w", err)
		}
		s.demo.heartbeat = hb
		s.demo.sys = s.smp
	}
	s.demo.rep = report.New(kernels[0], h.Logger(), h.Display())
	h.Logger().WriteLineString(fmt.Sprintf("app: warden %s started on %d core(s)", buildinfo.Long(), len(kernels)))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.forwardInput(ctx, kernels[0])
	go s.run(ctx)
	return s, nil
}

func (s *System) build() ([]*kernel.Kernel, error) {
	log := s.h.Logger()
	var mpu kernel.ProtectionBackend
	if m := s.h.MPU(); m != nil {
		s.demo.mpu = newMPUBackend(m, log)
		mpu = s.demo.mpu
	}

	b0 := kernel.NewBuilder(kernel.Config{
		Core:          0,
		SharedRegions: []kernel.Region{s.demo.mem[0].sharedRegion()},
		Backend:       mpu,
		Logger:        log,
	})
	if err := s.demo.buildCore0(b0); err != nil {
		return nil, fmt.Errorf("app: core 0: %w", err)
	}
	k0, err := b0.Start()
	if err != nil {
		return nil, fmt.Errorf("app: core 0: %w", err)
	}
	if s.cfg.Cores == 1 {
		return []*kernel.Kernel{k0}, nil
	}

	b1 := kernel.NewBuilder(kernel.Config{Core: 1, Logger: log})
	ev, err := s.demo.buildCore1(b1)
	if err != nil {
		return nil, fmt.Errorf("app: core 1: %w", err)
	}
	k1, err := b1.Start()
	if err != nil {
		return nil, fmt.Errorf("app: core 1: %w", err)
	}
	s.demo.heartbeatEv = ev
	return []*kernel.Kernel{k0, k1}, nil
}

func (s *System) run(ctx context.Context) {
	defer close(s.done)
	var ticks <-chan uint64
	if t := s.h.Time(); t != nil {
		ticks = t.Ticks()
	}
	err := s.smp.Run(ctx, ticks)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		s.h.Logger().WriteLineString(fmt.Sprintf("app: stopped: %v", err))
	}
}

// forwardInput turns button presses into activations of the button event. It
// stands in for the button interrupt.
func (s *System) forwardInput(ctx context.Context, k *kernel.Kernel) {
	in := s.h.Input()
	if in == nil || in.Keyboard() == nil {
		return
	}
	events := in.Keyboard().Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Press {
				continue
			}
			switch ev.Code {
			case hal.KeySpace, hal.KeyEnter:
				k.TriggerEvent(s.demo.button, uintptr(ev.Code))
			}
		}
	}
}

// Step reports whether the system is still running.
func (s *System) Step() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	if s.cfg.HoldOnHalt {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Kernel returns the kernel of core i.
func (s *System) Kernel(i int) *kernel.Kernel { return s.smp.Kernel(i) }

// Done is closed when the kernels have stopped.
func (s *System) Done() <-chan struct{} { return s.done }

// Close stops the kernels and waits for them.
func (s *System) Close() {
	s.cancel()
	<-s.done
}
