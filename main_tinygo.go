//go:build tinygo

package main

import (
	"warden/app"
	"warden/hal"
)

func main() {
	app.Run(hal.New())
}
