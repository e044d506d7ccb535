package app

import (
	"context"
	"fmt"

	"sparkrt/config"
	"sparkrt/hal"
)

// Main runs the built-in demo system on h and never returns. It is the
// firmware entry point; a halted system stays halted.
func Main(h hal.HAL) {
	log := h.Logger()
	a, err := New(h, config.Default(), Options{})
	if err != nil {
		if log != nil {
			log.WriteLineString(fmt.Sprintf("app: %v", err))
		}
		select {}
	}
	if err := a.Run(context.Background()); err != nil && log != nil {
		log.WriteLineString(fmt.Sprintf("app: stopped: %v", err))
	}
	select {}
}
