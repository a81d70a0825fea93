// Package logging decouples the delivery code from the process-wide logger so
// that packages can be exercised in tests without initializing log files.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/LixenWraith/logger"
)

// Logger is the structured, context-aware logging surface used across the module.
// Arguments after msg are key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

// Std forwards to the package-level LixenWraith logger. logger.Init must have
// been called by the binary before Std is used.
type Std struct{}

func (Std) Debug(ctx context.Context, msg string, args ...any) { logger.Debug(ctx, msg, args...) }
func (Std) Info(ctx context.Context, msg string, args ...any)  { logger.Info(ctx, msg, args...) }
func (Std) Warn(ctx context.Context, msg string, args ...any)  { logger.Warn(ctx, msg, args...) }
func (Std) Error(ctx context.Context, msg string, args ...any) { logger.Error(ctx, msg, args...) }

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any) {}
func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}

// Text writes warnings and errors as slog text lines. Binaries fall back to it
// when the log directory cannot be opened.
type Text struct {
	l *slog.Logger
}

func NewText(w io.Writer) Text {
	return Text{l: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))}
}

func (t Text) Debug(ctx context.Context, msg string, args ...any) { t.l.DebugContext(ctx, msg, args...) }
func (t Text) Info(ctx context.Context, msg string, args ...any)  { t.l.InfoContext(ctx, msg, args...) }
func (t Text) Warn(ctx context.Context, msg string, args ...any)  { t.l.WarnContext(ctx, msg, args...) }
func (t Text) Error(ctx context.Context, msg string, args ...any) { t.l.ErrorContext(ctx, msg, args...) }
