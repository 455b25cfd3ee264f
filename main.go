package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soundloc/cmd"
	"soundloc/internal/log"
	"soundloc/pkg/build"
)

// main is the entry point for soundloc.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse command line arguments
//   - Install signal handling
//
// 2. Work Phase:
//   - Load the session and recordings
//   - Localize every chunk on the worker pool
//   - Print and publish the estimates
//
// 3. Shutdown Phase:
//   - Close transports
//   - Exit non-zero on failure
func main() {
	// ==================== STARTUP PHASE ====================

	// Development builds have no ldflags; keep the defaults and carry on.
	if err := build.Initialize(); err != nil {
		log.Debugf("build info: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Help or version only.
	if opts.Command == "" {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== WORK PHASE ====================

	err = cmd.Execute(ctx, opts, os.Stdout)

	// ==================== SHUTDOWN PHASE ====================

	// Execute closes its own transports; only the exit status is left.
	if err != nil {
		stop()
		log.Fatalf("%s: %v", opts.Command, err)
	}
}
