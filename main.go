// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/gqlharvest/cmd"
	"github.com/xkilldash9x/gqlharvest/internal/observability"
)

// main is the entry point for the gqlharvest CLI.
func main() {
	// Listen for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Aborted by the user; any partial results already went to stdout.
			os.Exit(130)
		}
		os.Exit(1)
	}
}
