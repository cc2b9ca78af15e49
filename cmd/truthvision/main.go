package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/truthvision/truthvision-go/internal/cli"
)

func main() {
	// Cancel in-flight work on interrupt; serve shuts down gracefully
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
