package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/speckit-dev/speckit/internal/cli"
)

func main() {
	// First signal cancels the run context so in-flight tasks can finish
	// and be recorded; the CLI handles a second one.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
