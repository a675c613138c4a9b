// Package logging defines the structured logger used across the service.
// The interface keeps callers decoupled from the backing implementation.
package logging

import "context"

// Logger logs structured messages. The variadic args are alternating
// key/value pairs:
//
//	log.Info(ctx, "server started", "addr", addr)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that carries the given key/value pairs
	// on every record.
	With(args ...any) Logger
}
