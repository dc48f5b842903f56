// Package format renders text for Telegram's HTML parse mode.
package format

import (
	"html"
	"strings"
)

// Escape makes text safe inside an HTML-mode message.
func Escape(text string) string {
	return html.EscapeString(text)
}

// Pre wraps text in a preformatted block. Empty text still yields a visible
// block so the message is never empty.
func Pre(text string) string {
	if strings.TrimSpace(text) == "" {
		text = "(empty)"
	}
	return "<pre>" + Escape(text) + "</pre>"
}

// Italic renders a short note such as a page label.
func Italic(text string) string {
	return "<i>" + Escape(text) + "</i>"
}
