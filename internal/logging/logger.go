// Package logging defines the structured-logging interface used by every
// sitekeeper component, together with its slog-backed implementation.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key-value pairs:
//
//	log.Info(ctx, "login succeeded", "account_id", id)
type Logger interface {
	// Debug logs diagnostics that are hidden in production, such as the
	// concrete reason a token failed verification.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	// Error logs a failure that an operator should look at.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
