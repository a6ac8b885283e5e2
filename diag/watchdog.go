// Package diag watches a running session and writes diagnostics when
// unpacking stops making progress.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"unravel/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

// Progress is what the watchdog samples from a session.
type Progress struct {
	Processed int64 `json:"processed"`
	Pending   int64 `json:"pending"`
	Queued    int   `json:"queued"`
}

type Options struct {
	StallThreshold     time.Duration
	Dir                string
	GoroutineLeak      bool
	Progress           func() Progress
	DumpFlightRecorder func(path string) error
	Now                func() time.Time
	Profiles           func(name string) profileWriter
}

// Watchdog reports sessions whose processed count stays flat while work is
// still pending. A session with nothing pending is idle, not stalled.
type Watchdog struct {
	opts Options

	mu         sync.Mutex
	last       int64
	movedAt    time.Time
	reportedAt time.Time

	stop chan struct{}
	done chan struct{}
}

func New(opts Options) *Watchdog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Profiles == nil {
		opts.Profiles = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Watchdog{opts: opts}
}

// Start samples progress until ctx ends or Close is called. It does nothing
// without a threshold or a progress source.
func (w *Watchdog) Start(ctx context.Context) {
	if w == nil || w.opts.StallThreshold <= 0 || w.opts.Progress == nil || w.stop != nil {
		return
	}
	w.mu.Lock()
	w.last = w.opts.Progress().Processed
	w.movedAt = w.opts.Now()
	w.mu.Unlock()

	interval := min(max(w.opts.StallThreshold/2, 250*time.Millisecond), 2*time.Second)
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.check(w.opts.Now())
			}
		}
	}()
}

// Close stops sampling and writes the goroutine leak profile when asked to.
func (w *Watchdog) Close() {
	if w == nil {
		return
	}
	if w.stop != nil {
		close(w.stop)
		<-w.done
		w.stop, w.done = nil, nil
	}
	if w.opts.GoroutineLeak {
		if _, err := w.writeProfile("goroutine", "pprof", 0); err != nil {
			logger.Warnf("Goroutine leak profile failed: %v", err)
		}
	}
}

func (w *Watchdog) check(now time.Time) {
	p := w.opts.Progress()

	w.mu.Lock()
	if p.Processed != w.last || p.Pending == 0 {
		w.last = p.Processed
		w.movedAt = now
		w.mu.Unlock()
		return
	}
	stalled := now.Sub(w.movedAt)
	report := stalled >= w.opts.StallThreshold &&
		(w.reportedAt.IsZero() || now.Sub(w.reportedAt) >= w.opts.StallThreshold)
	if report {
		w.reportedAt = now
	}
	w.mu.Unlock()

	if report {
		logger.Warnf("Unpacking stalled for %s with %d items pending", stalled.Round(time.Millisecond), p.Pending)
		if err := w.report(now, p, stalled); err != nil {
			logger.Warnf("Stall diagnostics failed: %v", err)
		}
	}
}

// report writes the stall event, the goroutine stacks and, when a flight
// recorder is running, its trace.
func (w *Watchdog) report(now time.Time, p Progress, stalled time.Duration) error {
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return err
	}
	ts := stamp(now)
	event := struct {
		Event       string   `json:"event"`
		Timestamp   string   `json:"timestamp"`
		Progress    Progress `json:"progress"`
		ThresholdMS int64    `json:"threshold_ms"`
		StalledMS   int64    `json:"stalled_ms"`
	}{
		Event:       "unpack_stalled",
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Progress:    p,
		ThresholdMS: w.opts.StallThreshold.Milliseconds(),
		StalledMS:   stalled.Milliseconds(),
	}
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.opts.Dir, "unravel-stall-"+ts+".json"), data, 0o600); err != nil {
		return err
	}
	if _, err := w.writeProfile("goroutine", "txt", 2); err != nil {
		logger.Warnf("Goroutine dump failed: %v", err)
	}
	if w.opts.DumpFlightRecorder != nil {
		if err := w.opts.DumpFlightRecorder(filepath.Join(w.opts.Dir, "unravel-flight-"+ts+".out")); err != nil {
			logger.Warnf("Flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (w *Watchdog) writeProfile(name, ext string, debug int) (string, error) {
	profile := w.opts.Profiles(name)
	if profile == nil {
		return "", fmt.Errorf("profile %q unavailable", name)
	}
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(w.opts.Dir, fmt.Sprintf("unravel-%s-%s.%s", name, stamp(w.opts.Now()), ext))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}

func stamp(t time.Time) string { return t.UTC().Format("20060102-150405.000") }
