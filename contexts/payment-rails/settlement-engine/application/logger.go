package application

import "log/slog"

// ResolveLogger keeps nil-logger call sites safe across application and
// worker code.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
