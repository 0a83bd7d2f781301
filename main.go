package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Cancelling the context aborts in-flight queries through the drivers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
