package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	ctxRID      contextKey = "rid"
	ctxUpdateID contextKey = "update_id"
	ctxUserID   contextKey = "user_id"
	ctxChatID   contextKey = "chat_id"
	ctxLogger   contextKey = "logger"
	ctxHandler  contextKey = "handler"
	ctxSession  contextKey = "session_id"
	ctxTarget   contextKey = "ssh_target"
)

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// value reads key from ctx, or the zero T when ctx is nil or holds no T.
func value[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}

// WithLogger makes log the logger FromContext returns for ctx.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	ctx = orBackground(ctx)
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext returns the logger stored by WithLogger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l := value[*slog.Logger](ctx, ctxLogger); l != nil {
		return l
	}
	return L
}

// WithRID tags ctx with the correlation id of the update being served.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(orBackground(ctx), ctxRID, rid)
}

func RIDFrom(ctx context.Context) string { return value[string](ctx, ctxRID) }

// WithUpdateMeta tags ctx with the ids of a Telegram update. Every log line
// written with ctx carries them unless the record sets its own.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = context.WithValue(orBackground(ctx), ctxUpdateID, updateID)
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxChatID, chatID)
}

func UpdateIDFrom(ctx context.Context) int { return value[int](ctx, ctxUpdateID) }

func UserIDFrom(ctx context.Context) int64 { return value[int64](ctx, ctxUserID) }

func ChatIDFrom(ctx context.Context) int64 { return value[int64](ctx, ctxChatID) }

// WithHandler names the route serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	ctx = orBackground(ctx)
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

func HandlerFrom(ctx context.Context) string { return value[string](ctx, ctxHandler) }

// WithSession tags ctx with the SSH session a step runs against. target is
// rendered as user@host:port and never carries credentials.
func WithSession(ctx context.Context, sessionID, target string) context.Context {
	ctx = orBackground(ctx)
	if sessionID != "" {
		ctx = context.WithValue(ctx, ctxSession, sessionID)
	}
	if target != "" {
		ctx = context.WithValue(ctx, ctxTarget, target)
	}
	return ctx
}

// SessionFrom returns the session id and target stored by WithSession.
func SessionFrom(ctx context.Context) (sessionID, target string) {
	return value[string](ctx, ctxSession), value[string](ctx, ctxTarget)
}
