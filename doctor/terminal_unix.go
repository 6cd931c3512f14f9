//go:build !windows

package doctor

import (
	"context"
	"os"
	"os/exec"

	"monologue/shutdown"
)

func resetTerminal() {
	exec.Command("stty", "sane").Run()
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
