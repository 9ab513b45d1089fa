// Package debug provides conditional debug logging for fg.
//
// Debug logging is enabled by setting the FG_DEBUG environment variable:
//
//	FG_DEBUG=1 fg -graph graph.json
//
// When enabled, debug messages are written to stderr with timestamps.
// When disabled (default), all debug functions return immediately.
//
// Usage:
//
//	import "github.com/vanderheijden86/forcegraph/pkg/debug"
//
//	func settle() {
//	    defer debug.LogEnterExit("settle")()
//	    debug.Log("alpha=%.3f steps=%d", alpha, steps)
//	}
package debug

import (
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const prefix = "[FG_DEBUG] "

var (
	enabled atomic.Bool

	mu     sync.Mutex
	logger *log.Logger
)

func init() {
	if os.Getenv("FG_DEBUG") != "" {
		SetEnabled(true)
	}
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	mu.Lock()
	if e && logger == nil {
		logger = log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)
	}
	mu.Unlock()
	enabled.Store(e)
}

// SetOutput redirects debug output, e.g. to a file while the TUI owns the terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, prefix, log.Ltime|log.Lmicroseconds)
}

func current() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Log writes a printf-style debug message if debug logging is enabled.
func Log(format string, args ...any) {
	if !enabled.Load() {
		return
	}
	if l := current(); l != nil {
		l.Printf(format, args...)
	}
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	if l := current(); l != nil {
		l.Printf("%s took %v", name, d)
	}
}

// LogEnterExit logs function entry and exit with timing.
//
//	defer debug.LogEnterExit("SetNodes")()
func LogEnterExit(name string) func() {
	if !enabled.Load() {
		return func() {}
	}
	Log("-> %s", name)
	start := time.Now()
	return func() {
		Log("<- %s (%v)", name, time.Since(start))
	}
}
