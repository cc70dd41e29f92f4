// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/varjak-dev/potokend/cmd"
)

// main is the entry point for the potokend daemon.
func main() {
	// Set up a context that listens for interrupt signals (SIGINT,
	// SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Graceful shutdown initiated by a signal.
			return
		}
		os.Exit(1)
	}
}
