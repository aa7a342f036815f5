//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	// Hz is the rate of the host loop. Every iteration advances the time base
	// by the wall time elapsed since the previous one.
	Hz int
	// Ticks stops the runner after this many loop iterations (0 = run forever).
	Ticks uint64

	Host HostConfig
}

// RunHeadless runs the OS without opening a window.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 1000
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h, err := newHostHAL(cfg.Host)
	if err != nil {
		return err
	}
	defer h.Close()
	step := newApp(h)

	t := time.NewTicker(d)
	defer t.Stop()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			h.kbd.poll()
			h.t.step()
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			n++
			if cfg.Ticks > 0 && n >= cfg.Ticks {
				return nil
			}
		}
	}
}
