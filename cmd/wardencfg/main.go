// Command wardencfg checks a demo configuration file: it builds the kernels
// the configuration describes and prints their event and process tables.
package main

import (
	"flag"
	"fmt"
	"os"

	"warden/app"
	"warden/internal/buildinfo"
)

func main() {
	path := flag.String("config", "", "JSON configuration to check (default: built-in configuration).")
	quiet := flag.Bool("q", false, "Only report errors.")
	version := flag.Bool("version", false, "Print the build version and exit.")
	flag.Parse()

	if *version {
		fmt.Println("wardencfg " + buildinfo.Long())
		return
	}

	cfg := app.DefaultConfig()
	if *path != "" {
		var err error
		if cfg, err = app.LoadConfig(*path); err != nil {
			fatalf("%v", err)
		}
	}
	lines, err := app.Check(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	if *quiet {
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
