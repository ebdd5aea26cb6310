package bptree

// Logger receives the index's sparse diagnostics: open/close, flush
// failures, skipped batch instructions. The method set is a subset of
// slog.Logger, so *slog.Logger satisfies it directly; the logger
// subpackage adapts zap and logrus. Args are alternating key-value
// pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// DiscardLogger drops everything. It is the default when no WithLogger
// option is given.
type DiscardLogger struct{}

func (DiscardLogger) Error(string, ...any) {}

func (DiscardLogger) Warn(string, ...any) {}

func (DiscardLogger) Info(string, ...any) {}
