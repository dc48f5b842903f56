package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/sshbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives free-form messages from users who are in the middle
// of a multi-step exchange.
type Conversation interface {
	InProgress(userID int64) bool
	HandleMessage(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text and document routing. Order of
// precedence: an ongoing conversation, a registered slash command telebot did
// not route itself (e.g. with a "@botname" suffix), then opts.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	inProgress := func(c tele.Context) bool {
		return conv != nil && c.Sender() != nil && conv.InProgress(c.Sender().ID)
	}

	handler := func(c tele.Context) error {
		start := time.Now()

		if inProgress(c) {
			return handled(c, "conversation", start, func() error {
				return conv.HandleMessage(c)
			})
		}

		if reg != nil && strings.HasPrefix(c.Text(), "/") {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				name := routeName(key)
				return handled(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handled(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		skipped(c, "unknown_text", start)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if inProgress(c) {
			return handled(c, "conversation_document", start, func() error {
				return conv.HandleMessage(c)
			})
		}
		if opts.UnknownDocument != nil {
			return handled(c, "document", start, func() error {
				return opts.UnknownDocument(c)
			})
		}
		skipped(c, "unexpected_document", start)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: handler},
		{Endpoint: tele.OnDocument, Handler: docHandler},
	}
}

// FallbackProvider supplies the replies for updates no route claims.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// FallbackOptions takes the text and document fallbacks from p.
func FallbackOptions(p FallbackProvider) TextOptions {
	if p == nil {
		return TextOptions{}
	}
	return TextOptions{
		UnknownText:     p.UnknownText(),
		UnknownDocument: p.UnknownDocument(),
	}
}

// Routes wires every registry entry plus the conversation and fallbacks into
// routes ready for RunOptions.
func Routes(reg *tg.Registry, conv Conversation, fallbacks FallbackProvider, cmdOpts CommandRouteOptions) []tg.Route {
	if fallbacks != nil {
		reg.SetCallbackNotFound(fallbacks.UnknownCallback())
	}
	routes := CommandRoutes(reg, cmdOpts)
	routes = append(routes, CallbackRoute(reg))
	return append(routes, TextRoutes(conv, reg, FallbackOptions(fallbacks))...)
}
