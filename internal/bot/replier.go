package bot

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/m3rciful/sshbot/core/telegram/format"
	"github.com/m3rciful/sshbot/core/telegram/sender"
	"github.com/m3rciful/sshbot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// maxCaption is Telegram's limit for document captions.
const maxCaption = 1024

var errNotBound = errors.New("bot: replier used before the bot started")

// API is the part of *tele.Bot used to deliver replies.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Replier delivers dialog replies to the user's private chat. Calls run on
// the caller's goroutine so a user's messages arrive in order.
type Replier struct {
	mu   sync.RWMutex
	api  API
	disp *sender.Dispatcher
}

// NewReplier returns a Replier that fails until Bind is called.
func NewReplier() *Replier {
	return &Replier{}
}

// Bind attaches the running bot. disp may be nil, in which case calls are
// made once without retries.
func (r *Replier) Bind(api API, disp *sender.Dispatcher) {
	r.mu.Lock()
	r.api = api
	r.disp = disp
	r.mu.Unlock()
}

func (r *Replier) bound() (API, *sender.Dispatcher) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.api, r.disp
}

func (r *Replier) do(ctx context.Context, action, endpoint string, run func() error) error {
	api, disp := r.bound()
	if api == nil {
		return errNotBound
	}
	if disp == nil {
		return run()
	}
	return disp.Do(ctx, action, endpoint, run)
}

// Reply implements dialog.Replier.
func (r *Replier) Reply(ctx context.Context, userID int64, rep dialog.Reply) error {
	api, _ := r.bound()
	if api == nil {
		return errNotBound
	}
	chat := tele.ChatID(userID)
	kb := markup(rep)

	if rep.Document != nil {
		att := rep.Document
		caption := cut(rep.Text, maxCaption)
		return r.do(ctx, "send.document", "sendDocument", func() error {
			doc := &tele.Document{
				File:     tele.FromReader(bytes.NewReader(att.Data)),
				FileName: att.Name,
				Caption:  caption,
			}
			_, err := api.Send(chat, doc, &tele.SendOptions{ReplyMarkup: kb})
			return err
		})
	}

	text := render(rep)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: kb}
	if rep.EditMessageID != 0 {
		msg := tele.StoredMessage{MessageID: strconv.Itoa(rep.EditMessageID), ChatID: userID}
		err := r.do(ctx, "edit.text", "editMessageText", func() error {
			_, err := api.Edit(msg, text, opts)
			return err
		})
		if err == nil || notModified(err) {
			return nil
		}
	}
	return r.do(ctx, "send.text", "sendMessage", func() error {
		_, err := api.Send(chat, text, opts)
		return err
	})
}

// Delete implements dialog.Replier.
func (r *Replier) Delete(ctx context.Context, userID int64, messageID int) error {
	api, _ := r.bound()
	if api == nil {
		return errNotBound
	}
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: userID}
	return r.do(ctx, "delete.message", "deleteMessage", func() error {
		return api.Delete(msg)
	})
}

// render turns a reply into HTML-mode text.
func render(rep dialog.Reply) string {
	var b strings.Builder
	if rep.Mono {
		b.WriteString(format.Pre(rep.Text))
	} else {
		b.WriteString(format.Escape(rep.Text))
	}
	if rep.Page != nil && rep.Page.Total > 1 {
		b.WriteString("\n")
		b.WriteString(format.Italic(rep.Page.Label()))
	}
	return b.String()
}

func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// cut limits s to n runes.
func cut(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
