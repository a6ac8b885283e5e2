package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"unravel/config"
	"unravel/diag"
	"unravel/logger"
	"unravel/output"
	"unravel/parsers/all"
	"unravel/scanner"
	"unravel/tracing"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	logger.Init(cfg.LogLevel)

	if err := tracing.Start(cfg.TraceFile); err != nil {
		logger.Warnf("Failed to start trace: %v", err)
	} else {
		defer tracing.Stop()
	}

	flightRecorder := false
	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			flightRecorder = true
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	store, err := output.New(cfg)
	if err != nil {
		logger.Errorf("Failed to initialize results directory: %v", err)
		return 1
	}
	defer store.Close()

	session, err := scanner.NewSession(cfg, all.Default(), store)
	if err != nil {
		logger.Errorf("Failed to start session: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignalEvent(ctx, cancel, sigChan)

	opts := diag.Options{
		StallThreshold: cfg.DiagSlowScanThreshold,
		Dir:            cfg.DiagDir,
		GoroutineLeak:  cfg.DiagGoroutineLeak,
		Progress: func() diag.Progress {
			processed, pending, queued := session.Progress()
			return diag.Progress{Processed: processed, Pending: pending, Queued: queued}
		},
	}
	if flightRecorder {
		opts.DumpFlightRecorder = tracing.WriteFlightRecorder
	}
	watchdog := diag.New(opts)
	watchdog.Start(ctx)
	defer watchdog.Close()

	logger.Infof("Session %s writing to %s", session.ID(), cfg.WorkDirectory)
	metrics, err := session.Run(ctx)
	if metrics != nil {
		logger.WithFields(logger.Fields{
			"recorded":   metrics.FilesRecorded,
			"scanned":    metrics.FilesScanned,
			"unique":     metrics.UniqueContent,
			"dedup_hits": metrics.DedupHits,
			"claims":     metrics.Claims,
			"carves":     metrics.Carves,
			"unscanned":  metrics.Unscanned,
			"unparsed":   metrics.Unparsed,
		}).Info("Session summary")
	}
	switch code := exitCode(err); code {
	case 0:
		logger.Info("Unpacking completed successfully.")
		return code
	case exitInterrupted:
		logger.Warn("Unpacking interrupted; partial results were written.")
		return code
	default:
		if scanner.IsOutputError(err) {
			logger.Errorf("Results could not be written to %s: %v", cfg.WorkDirectory, err)
		} else {
			logger.Errorf("Unpacking failed: %v", err)
		}
		return code
	}
}

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}

// handleSignalEvent cancels the session on the first signal. In-flight files
// finish and the partial tree is written.
func handleSignalEvent(ctx context.Context, cancel context.CancelFunc, sigChan <-chan os.Signal) {
	select {
	case <-sigChan:
		logger.Info("Interrupt signal received. Shutting down...")
		cancel()
	case <-ctx.Done():
	}
}
