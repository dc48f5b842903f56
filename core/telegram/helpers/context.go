package helpers

import (
	"context"

	"github.com/m3rciful/sshbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	ctxKey = "sshbot.ctx"
	ridKey = "rid"
)

// StoreContext keeps ctx on c for the handlers further down the chain.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok
}

// UpdateIDs returns the chat and sender of c, zero when the update has none.
func UpdateIDs(c tele.Context) (chatID, userID int64) {
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return chatID, userID
}

// NewContext starts the logging context of the update in c: a request id,
// the update ids and the tg logger. The result is stored on c.
func NewContext(c tele.Context) context.Context {
	upd := c.Update()
	chatID, userID := UpdateIDs(c)
	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.BuildRID(upd.ID, chatID, userID)
		c.Set(ridKey, rid)
	}
	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.ComponentTG))
	StoreContext(c, ctx)
	return ctx
}

// BuildContext returns the stored context of c, creating it on first use.
// Dialog steps and session lookups run under it so their lines share the rid.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	return NewContext(c)
}

// WithHandler adds the route name to the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
