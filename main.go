// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/tasker-cli/cmd"
)

// main is the entry point for the tasker CLI. It installs signal handling so
// an interrupt cancels the in-flight session cleanly; the loop persists its
// state on every step, so nothing is lost.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
