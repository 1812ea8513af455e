package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"llmsock/internal/cli"
)

func main() {
	// Graceful shutdown (Ctrl+C / SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "llmsock: %v\n", err)
		stop()
		os.Exit(1)
	}
}
