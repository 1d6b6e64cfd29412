// Package faketest holds hand-written test doubles shared across the
// multiplexer, coordinator, and client unit tests.
package faketest

// Logger is a configurable logger.Logger double. Tests that don't care
// about logging leave DebugFunc/ErrorFunc nil; Debug/Error become no-ops.
// Tests asserting "no unexpected error log" set ErrorFunc to t.Errorf.
type Logger struct {
	DebugFunc func(msg string, args ...any)
	ErrorFunc func(msg string, args ...any)
}

func (l *Logger) Debug(msg string, args ...any) {
	if l.DebugFunc != nil {
		l.DebugFunc(msg, args...)
	}
}

func (l *Logger) Error(msg string, args ...any) {
	if l.ErrorFunc != nil {
		l.ErrorFunc(msg, args...)
	}
}
