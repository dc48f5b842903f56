package middleware

import (
	"log/slog"

	"github.com/m3rciful/sshbot/core/logger"
	tghelpers "github.com/m3rciful/sshbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AccessOptions decides who may talk to the bot at all.
type AccessOptions struct {
	Allows   func(userID int64) bool
	OnReject tele.HandlerFunc
}

// AccessMiddleware drops updates from users that Allows rejects.
// Updates without a sender (channel posts) are always dropped.
func AccessMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return nil
			}
			if opts.Allows == nil || opts.Allows(user.ID) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "access.denied",
				slog.Int64("user_id", user.ID),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	IsAdmin  func(userID int64) bool
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only admins can invoke downstream handlers.
// Without an IsAdmin check nobody is an admin.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.IsAdmin == nil || !opts.IsAdmin(user.ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
