//go:build windows

package doctor

import (
	"context"
	"os"

	"monologue/shutdown"
)

func resetTerminal() {
	// Not needed on Windows
}

func setupInterruptHandler() {
	ctx, cancel := shutdown.Context(context.Background())
	go func() {
		defer cancel()
		<-ctx.Done()
		println("\nInterrupted")
		os.Exit(1)
	}()
}
