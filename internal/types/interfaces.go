package types

// Logger defines the structured logging interface used throughout the
// pipeline. Satisfied by a thin adapter around *slog.Logger; components
// depend on this interface so tests can capture log output.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}
