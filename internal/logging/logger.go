// Package logging defines the structured-logging interface shared by the
// pairing components and its log/slog implementation.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "peer key stored", "endpoint", ep, "attempt", gen)
type Logger interface {
	// Debug logs protocol progress useful while diagnosing a pairing run.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs rejected peer input and other non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures and invalid-state conditions.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
