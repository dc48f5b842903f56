package middleware

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/sshbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

// Redactor reports whether the next message of userID must not be logged,
// for instance because it carries a password.
type Redactor func(userID int64) bool

var payloadRedactor atomic.Pointer[Redactor]

// SetPayloadRedactor installs the check consulted before message text is logged.
// nil removes it.
func SetPayloadRedactor(r Redactor) {
	if r == nil {
		payloadRedactor.Store(nil)
		return
	}
	payloadRedactor.Store(&r)
}

func redacted(userID int64) bool {
	r := payloadRedactor.Load()
	return r != nil && (*r)(userID)
}

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware logs a single receipt line per update and sets rid.
// It deduplicates by update_id to prevent double logging when middleware is applied on multiple branches.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()
		chatID, userID := tghelpers.UpdateIDs(c)

		c.Set("update_start", time.Now())
		ctx := tghelpers.NewContext(c)
		rid := logger.RIDFrom(ctx)

		if logger.ShouldSampleDebug(logger.ComponentTG) && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("rid", rid),
				slog.Int("update_id", upd.ID),
			}
			if chatID != 0 {
				attrs = append(attrs, slog.Int64("chat_id", chatID))
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", userID))
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}

			switch {
			case upd.Callback != nil:
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				if key != "" {
					attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				}
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil:
				if upd.Message.Document != nil {
					attrs = append(attrs, slog.String("document", logger.SanitizeLimit(upd.Message.Document.FileName, 128)))
				}
				if t := c.Text(); t != "" {
					if redacted(userID) {
						attrs = append(attrs, slog.Bool("payload_redacted", true))
					} else {
						attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
					}
				}
			}
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)
		}

		return next(c)
	}
}
