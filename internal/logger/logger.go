// Package logger defines the statement logging contract of rackdb and its
// sanitization layer for statement text that carries inlined values.
package logger

import "log/slog"

// Logger receives statement lifecycle messages with structured key-value
// pairs. The execution layer emits three levels: Info for completed
// statements, Warn for failed health probes and Error for failed statements.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. It is the default when no logger is
// configured.
type NoopLogger struct{}

func (n *NoopLogger) Info(_ string, _ ...any)  {}
func (n *NoopLogger) Warn(_ string, _ ...any)  {}
func (n *NoopLogger) Error(_ string, _ ...any) {}

// SlogAdapter routes Logger calls to a log/slog.Logger.
type SlogAdapter struct {
	base *slog.Logger
}

// NewSlogAdapter wraps base, which must not be nil.
func NewSlogAdapter(base *slog.Logger) *SlogAdapter {
	return &SlogAdapter{base: base}
}

func (a *SlogAdapter) Info(msg string, args ...any)  { a.base.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.base.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.base.Error(msg, args...) }
