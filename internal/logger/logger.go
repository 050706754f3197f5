// Package logger prints the arbiter's pipeline trace. Nothing here is
// structured telemetry: output is line-oriented text on stderr, meant
// for a user who passed --verbose and wants to watch an adjudication
// or ingestion run stage by stage.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// trace is the process-wide sink. Commands toggle it once at startup;
// tests swap the writer.
var trace = struct {
	sync.RWMutex
	on  bool
	out io.Writer
}{out: os.Stderr}

// SetVerbose enables or disables the trace.
func SetVerbose(v bool) {
	trace.Lock()
	trace.on = v
	trace.Unlock()
}

// IsVerbose reports whether the trace is enabled.
func IsVerbose() bool {
	trace.RLock()
	defer trace.RUnlock()
	return trace.on
}

// SetOutput redirects the trace away from stderr. Used by tests.
func SetOutput(w io.Writer) {
	trace.Lock()
	trace.out = w
	trace.Unlock()
}

func emit(tag, format string, args ...any) {
	trace.RLock()
	defer trace.RUnlock()
	if !trace.on {
		return
	}
	fmt.Fprintf(trace.out, tag+" "+format+"\n", args...)
}

// Debug traces fine-grained pipeline detail: match counts, provider
// resolution, file handling.
func Debug(format string, args ...any) { emit("[DEBUG]", format, args...) }

// Info traces stage outcomes.
func Info(format string, args ...any) { emit("[INFO]", format, args...) }

// Warn traces degraded-but-continuing conditions, such as failed
// fan-out queries or rerank fallback.
func Warn(format string, args ...any) { emit("[WARN]", format, args...) }

// Stage opens a banner for a pipeline run and returns a closer that
// reports the elapsed wall-clock time. Typical use:
//
//	defer logger.Stage("Adjudication")()
func Stage(name string) func() {
	trace.RLock()
	if trace.on {
		fmt.Fprintf(trace.out, "\n=== %s ===\n", name)
	}
	trace.RUnlock()

	start := time.Now()
	return func() {
		emit("[INFO]", "%s finished in %dms", name, time.Since(start).Milliseconds())
	}
}
