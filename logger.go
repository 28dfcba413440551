package vecstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with helpers for store operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a logger from an existing slog handler.
func NewLogger(handler slog.Handler) *Logger {
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a logger that writes human-readable output to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewJSONLogger creates a logger that writes JSON output to the given writer.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger returns a logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithID returns a logger with the entry ID attached to every record.
func (l *Logger) WithID(id uint64) *Logger {
	return &Logger{Logger: l.Logger.With(slog.Uint64("id", id))}
}

// WithDimension returns a logger with the vector dimension attached.
func (l *Logger) WithDimension(dimension int) *Logger {
	return &Logger{Logger: l.Logger.With(slog.Int("dimension", dimension))}
}

// LogAdd logs the outcome of an Add operation.
func (l *Logger) LogAdd(ctx context.Context, id uint64, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			slog.Uint64("id", id),
			slog.Int("dimension", dimension),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "entry added",
		slog.Uint64("id", id),
		slog.Int("dimension", dimension),
	)
}

// LogBatchAdd logs the outcome of an AddBatch operation.
func (l *Logger) LogBatchAdd(ctx context.Context, count, failed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch add failed",
			slog.Int("count", count),
			slog.Int("failed", failed),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "batch added",
		slog.Int("count", count),
	)
}

// LogSearch logs the outcome of a Search operation.
func (l *Logger) LogSearch(ctx context.Context, k, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			slog.Int("k", k),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		slog.Int("k", k),
		slog.Int("found", found),
	)
}

// LogGet logs the outcome of a Get operation.
func (l *Logger) LogGet(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get failed",
			slog.Uint64("id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "entry fetched",
		slog.Uint64("id", id),
	)
}

// LogUpdate logs the outcome of an Update operation.
func (l *Logger) LogUpdate(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			slog.Uint64("id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "entry updated",
		slog.Uint64("id", id),
	)
}

// LogDelete logs the outcome of a Delete operation.
func (l *Logger) LogDelete(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			slog.Uint64("id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "entry deleted",
		slog.Uint64("id", id),
	)
}

// LogSnapshot logs the outcome of writing a snapshot to dir.
func (l *Logger) LogSnapshot(ctx context.Context, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return
	}
	l.DebugContext(ctx, "snapshot written",
		slog.String("dir", dir),
	)
}

// LogRecovery logs the outcome of recovering state on open.
func (l *Logger) LogRecovery(ctx context.Context, count int, replayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recovery failed",
			slog.String("error", err.Error()),
		)
		return
	}
	l.InfoContext(ctx, "store recovered",
		slog.Int("count", count),
		slog.Int("replayed", replayed),
	)
}

// LogCheckpoint logs the outcome of a Checkpoint operation.
func (l *Logger) LogCheckpoint(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			slog.String("error", err.Error()),
		)
		return
	}
	l.InfoContext(ctx, "checkpoint completed",
		slog.Duration("duration", duration),
	)
}

// LogBackup logs the outcome of a Backup operation.
func (l *Logger) LogBackup(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}
	l.InfoContext(ctx, "backup completed",
		slog.String("name", name),
	)
}

// LogRestore logs the outcome of a Restore operation.
func (l *Logger) LogRestore(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}
	l.InfoContext(ctx, "restore completed",
		slog.String("name", name),
	)
}
