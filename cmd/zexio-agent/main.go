// Package main is the entry point for the zexio-agent binary: a
// host-resident edge agent that joins a node to the Zexio control
// plane, maintains a reverse tunnel, and serves the local mesh proxy.
//
// Dependencies are assembled via Google Wire; see wire.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zexio-io/zexio-agent/internal/core"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime / systemd).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires all dependencies and executes the root Cobra command.
func run(ctx context.Context) error {
	rootCmd, cleanup, err := wireAgent(core.Version(version))
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	defer cleanup()

	return rootCmd.ExecuteContext(ctx)
}
