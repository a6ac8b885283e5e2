//go:build !trace

package tracing

import "context"

const DefaultFile = "unravel-trace.out"

// Start does nothing unless built with the trace tag.
func Start(string) error { return nil }

func Stop() {}

func Enabled() bool { return false }

func StartTask(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

func StartRegion(context.Context, string) func() { return func() {} }

func Log(context.Context, string, string) {}

func Logf(context.Context, string, string, ...any) {}
