package docbase

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with docbase-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{Logger: l.Logger.With("collection", name)}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, collection string, inserted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"collection", collection,
			"inserted", inserted,
		)
	}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, collection string, inserted, total int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"collection", collection,
			"inserted", inserted,
			"updated", total-inserted,
		)
	}
}

// LogDrop logs a collection drop.
func (l *Logger) LogDrop(ctx context.Context, collection string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "drop failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "collection dropped",
			"collection", collection,
		)
	}
}

// LogRename logs a collection rename.
func (l *Logger) LogRename(ctx context.Context, from, to string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rename failed",
			"from", from,
			"to", to,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "collection renamed",
			"from", from,
			"to", to,
		)
	}
}

// LogCheckpoint logs a checkpoint operation.
func (l *Logger) LogCheckpoint(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"snapshot", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint saved",
			"snapshot", name,
		)
	}
}

// LogBackup logs a backup operation.
func (l *Logger) LogBackup(ctx context.Context, blobs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"blobs", blobs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup completed",
			"blobs", blobs,
		)
	}
}
