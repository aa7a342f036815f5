//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"warden/app"
	"warden/hal"
)

func main() {
	var cfg hal.HeadlessConfig
	var configPath string
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 1000, "Host loop rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N loop iterations in headless mode (0 = run forever).")
	flag.StringVar(&cfg.Host.SerialPort, "serial", "", "Mirror the log to this serial device.")
	flag.IntVar(&cfg.Host.SerialBaud, "baud", 115200, "Baud rate of -serial.")
	flag.BoolVar(&cfg.Host.Console, "console", true, "Read button presses from the terminal in headless mode.")
	flag.StringVar(&configPath, "config", "", "JSON file overriding the demo configuration.")
	flag.Parse()

	appCfg := app.DefaultConfig()
	if configPath != "" {
		var err error
		if appCfg, err = app.LoadConfig(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	if cfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, func(h hal.HAL) func() error {
			return app.NewWithConfig(h, appCfg)
		}, cfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	appCfg.HoldOnHalt = true
	if err := hal.RunWindow(func(h hal.HAL) func() error {
		return app.NewWithConfig(h, appCfg)
	}, cfg.Host); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
