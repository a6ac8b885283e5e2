//go:build trace

package tracing

import (
	"context"
	"fmt"
	"os"
	"runtime/trace"
)

// DefaultFile receives the execution trace when no path is configured.
const DefaultFile = "unravel-trace.out"

var traceFile *os.File

// Start writes an execution trace of the whole session to path.
func Start(path string) error {
	if path == "" {
		path = DefaultFile
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

func Stop() {
	trace.Stop()
	if traceFile != nil {
		traceFile.Close()
		traceFile = nil
	}
}

// Enabled reports whether an execution trace is being collected.
func Enabled() bool { return trace.IsEnabled() }

// StartTask opens a task for one work item. Regions and log events recorded
// with the returned context are grouped under it.
func StartTask(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}

func StartRegion(ctx context.Context, name string) func() {
	return trace.StartRegion(ctx, name).End
}

func Log(ctx context.Context, category, message string) {
	trace.Log(ctx, category, message)
}

// Logf formats only when tracing is on.
func Logf(ctx context.Context, category, format string, args ...any) {
	if !trace.IsEnabled() {
		return
	}
	trace.Log(ctx, category, fmt.Sprintf(format, args...))
}
