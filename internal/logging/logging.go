// Package logging provides the prefix-tagged logger used throughout the
// engine: ad hoc "[fingerprint]"/"[chunk N]" log.Printf tags folded into
// a small reusable type, plus a memory-usage probe for hot paths
// (logMemUsage/formatBytes).
package logging

import (
	"fmt"
	"log"
	"runtime"
)

// Logger tags every line with a component and an optional session id,
// matching the "[index]"/"[match]" style of request-scoped log lines.
type Logger struct {
	component string
	session   string
}

// New returns a Logger tagged with component (e.g. "fingerprint", "stream").
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithSession returns a copy of l tagged with a session id, so every line
// for a streaming session can be grepped together.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{component: l.component, session: sessionID}
}

func (l *Logger) prefix() string {
	if l.session == "" {
		return fmt.Sprintf("[%s]", l.component)
	}
	return fmt.Sprintf("[%s %s]", l.component, l.session)
}

// Printf logs a formatted message tagged with this logger's prefix.
func (l *Logger) Printf(format string, args ...any) {
	log.Printf("%s %s", l.prefix(), fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message; still routed through the standard
// logger since the engine has no separate warning sink, only the
// session-visible warning flags described in the error handling design.
func (l *Logger) Warnf(format string, args ...any) {
	log.Printf("%s WARN: %s", l.prefix(), fmt.Sprintf(format, args...))
}

// MemUsage logs current heap stats under label, for the fingerprinting
// and streaming hot paths called out in the memory bounds guidance.
func (l *Logger) MemUsage(label string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	l.Printf("[mem] %s: alloc=%s, sys=%s, heap_in_use=%s",
		label, FormatBytes(int64(m.Alloc)), FormatBytes(int64(m.Sys)), FormatBytes(int64(m.HeapInuse)))
}

// FormatBytes renders a byte count in a human-readable unit, matching the
// teacher's formatBytes helper.
func FormatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
