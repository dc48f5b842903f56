package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/sshbot/core/logger"
	tghelpers "github.com/m3rciful/sshbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn as route name and writes one handler.handled line with its
// outcome and duration.
func handled(c tele.Context, name string, start time.Time, fn func() error, extras ...slog.Attr) error {
	ctx := tghelpers.WithHandler(c, name)
	err := fn()

	attrs := append([]slog.Attr{
		slog.String("status", statusOf(err)),
		slog.String("handler", name),
		slog.String("outcome", outcomeOf(err)),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component(logger.ComponentTG), slog.LevelInfo, "handler.handled", attrs...)
	return err
}

// skipped records an update no route took.
func skipped(c tele.Context, name string, start time.Time) {
	ctx := tghelpers.WithHandler(c, name)
	logger.LogEvent(ctx, logger.Component(logger.ComponentTG), slog.LevelInfo, "handler.handled",
		slog.String("status", "skip"),
		slog.String("handler", name),
		slog.String("outcome", "ok"),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "fail"
}

func outcomeOf(err error) string {
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if err != nil {
		return "fail"
	}
	return "ok"
}

// routeName turns "/Connect" or a callback key into a log-friendly name.
func routeName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}

// errorCode prefers the Code of the first wrapped error that has one, such as
// STORE_IO or an SSH failure kind, then the concrete type name.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
