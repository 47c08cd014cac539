// Package main provides the usage-ledger CLI application.
//
// usage-ledger ingests app-usage session exports, maintains hourly, daily,
// weekly and monthly rollups per category, validates them against the raw
// sessions, and migrates or repairs stored data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set during build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
