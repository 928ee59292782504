package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memsvc/memory/internal/app"
	"github.com/memsvc/memory/internal/mcp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %s\n", err)
		os.Exit(1)
	}
	defer a.Close()

	go a.ProbeLoop(ctx, 30*time.Second)

	server := mcp.NewServer(a.Service, a.Traverser, a.Lifecycle, a.Limits, a.Logger)
	if err := server.Run(ctx); err != nil {
		a.Logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
