// Package log is a minimal leveled wrapper around an io.Writer.
//
// The core never reaches for a structured logging library: none of the
// packages this module grew from pull one into their core logic, so this
// stays on the standard library rather than inventing a dependency the
// corpus doesn't show for this concern.
package log

import (
	"fmt"
	"io"
	"time"
)

// Logger writes leveled, prefixed lines to an underlying io.Writer.
type Logger struct {
	w      io.Writer
	prefix string
	clock  func() time.Time
}

// New returns a Logger that writes to w. prefix is included on every line,
// mirroring the "dep: "-style prefix the teacher's own logger used.
func New(w io.Writer, prefix string) *Logger {
	return &Logger{w: w, prefix: prefix, clock: time.Now}
}

// Logln logs a line with no level marker.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l.w, append([]interface{}{l.prefix}, args...)...)
}

// Logf logs a formatted line with no level marker.
func (l *Logger) Logf(format string, args ...interface{}) {
	fmt.Fprintf(l.w, l.prefix+format+"\n", args...)
}

// Infof logs an informational line.
func (l *Logger) Infof(format string, args ...interface{}) {
	fmt.Fprintf(l.w, l.prefix+"info: "+format+"\n", args...)
}

// Warnf logs a warning line. Warnings are used for recoverable conditions:
// cache misses treated as misses (spec §4.3.5), unsupported-port
// warn-then-skip (spec §4.1.6), and the like.
func (l *Logger) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l.w, l.prefix+"warning: "+format+"\n", args...)
}

// Errorf logs an error line. Does not itself terminate anything; callers
// still return the error through the normal error-return path.
func (l *Logger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l.w, l.prefix+"error: "+format+"\n", args...)
}

// Discard is a Logger that writes nowhere, useful as a zero-configuration
// default for library callers that don't want diagnostics.
var Discard = New(io.Discard, "")
