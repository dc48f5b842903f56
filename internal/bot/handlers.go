// Package bot adapts Telegram updates to dialog events and dialog replies to
// Telegram messages.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tg "github.com/m3rciful/sshbot/core/telegram"
	"github.com/m3rciful/sshbot/core/telegram/callbacks"
	"github.com/m3rciful/sshbot/core/telegram/format"
	tghelpers "github.com/m3rciful/sshbot/core/telegram/helpers"
	"github.com/m3rciful/sshbot/internal/dialog"
	"github.com/m3rciful/sshbot/internal/sessionstore"

	tele "gopkg.in/telebot.v4"
)

const (
	msgBusy          = "⏳ Still working on your previous requests, try again in a moment."
	msgShuttingDown  = "🔧 The bot is restarting, try again shortly."
	msgDenied        = "⛔ You are not allowed to use this bot."
	msgAdminOnly     = "⛔ This command is for administrators."
	msgLimited       = "🐢 Too many requests, slow down."
	msgUnsupported   = "Unsupported action"
	msgNoSessions    = "No persisted sessions."
	msgNoSessionList = "Session listing is not available."
)

// Engine is the part of the dialog engine the handlers drive.
type Engine interface {
	Dispatch(ctx context.Context, ev dialog.Event) error
	State(userID int64) dialog.State
	Pending(userID int64) bool
}

// FileSource downloads documents sent by users; *tele.Bot implements it.
type FileSource interface {
	File(file *tele.File) (io.ReadCloser, error)
}

// Options configures Handlers.
type Options struct {
	Engine Engine
	Files  FileSource
	// Sessions lists persisted sessions for the admin /sessions command.
	Sessions func(ctx context.Context) ([]sessionstore.Record, error)
	Now      func() time.Time
}

// Handlers turns updates into dialog events.
type Handlers struct {
	opts Options
}

// New returns Handlers for opts.Engine.
func New(opts Options) *Handlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handlers{opts: opts}
}

// UseFiles sets the document source. Call it before updates flow.
func (h *Handlers) UseFiles(f FileSource) { h.opts.Files = f }

type commandSpec struct {
	name    string
	action  dialog.Action
	desc    string
	aliases []string
}

var commandSpecs = []commandSpec{
	{"/start", dialog.ActionStart, "Show the main menu", nil},
	{"/help", dialog.ActionHelp, "How to use the bot", nil},
	{"/menu", dialog.ActionMenu, "Show the menu", nil},
	{"/connect", dialog.ActionConnect, "Open an SSH session", []string{"/ssh"}},
	{"/disconnect", dialog.ActionDisconnect, "Close the SSH session", nil},
	{"/status", dialog.ActionStatus, "Show the current session", nil},
	{"/cancel", dialog.ActionCancel, "Abandon the current prompt", nil},
	{"/files", dialog.ActionFiles, "File manager", nil},
	{"/monitor", dialog.ActionMonitor, "System monitor", nil},
	{"/quick", dialog.ActionQuick, "Quick commands", nil},
}

// buttonActions lists every action a keyboard can carry.
var buttonActions = []dialog.Action{
	dialog.ActionStart, dialog.ActionHelp, dialog.ActionMenu,
	dialog.ActionConnect, dialog.ActionAuthPassword, dialog.ActionAuthKey,
	dialog.ActionDisconnect, dialog.ActionStatus, dialog.ActionCancel,
	dialog.ActionFiles, dialog.ActionBrowse, dialog.ActionPwd, dialog.ActionHome,
	dialog.ActionUpload, dialog.ActionDownload, dialog.ActionEdit, dialog.ActionMkdir,
	dialog.ActionTouch, dialog.ActionSearch, dialog.ActionCD, dialog.ActionDisk,
	dialog.ActionMonitor, dialog.ActionMonitorRun, dialog.ActionQuick, dialog.ActionQuickRun,
	dialog.ActionPage,
}

// Register adds the bot's commands and callbacks to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	for _, spec := range commandSpecs {
		reg.RegisterCommand(spec.name, tg.Command{
			Handler:     h.command(spec.action),
			Description: spec.desc,
			Aliases:     spec.aliases,
		})
	}
	reg.RegisterCommand("/sessions", tg.Command{
		Handler:     h.listSessions,
		Description: "Persisted sessions",
		AdminOnly:   true,
	})
	for _, a := range buttonActions {
		if err := reg.RegisterCallback(string(a), h.button(a)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) command(a dialog.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := h.event(c, dialog.EventCommand)
		ev.Action = a
		if m := c.Message(); m != nil {
			ev.Payload = strings.TrimSpace(m.Payload)
		}
		return h.dispatch(c, ev)
	}
}

func (h *Handlers) button(a dialog.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := h.event(c, dialog.EventButton)
		ev.Action = a
		ev.Payload = callbacks.CallbackPayload(c)
		ev.Text = ""
		return h.dispatch(c, ev)
	}
}

func (h *Handlers) text(c tele.Context) error {
	return h.dispatch(c, h.event(c, dialog.EventText))
}

func (h *Handlers) document(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Document == nil {
		return nil
	}
	doc := m.Document
	ev := h.event(c, dialog.EventDocument)
	file := doc.File
	ev.Document = &dialog.InboundFile{
		Name:  doc.FileName,
		Size:  file.FileSize,
		Fetch: h.fetcher(&file),
	}
	return h.dispatch(c, ev)
}

// fetcher downloads file from Telegram when the user's worker asks for it.
func (h *Handlers) fetcher(file *tele.File) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		if h.opts.Files == nil {
			return nil, errors.New("bot: document download is not configured")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rc, err := h.opts.Files.File(file)
		if err != nil {
			return nil, fmt.Errorf("download document: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		return data, nil
	}
}

func (h *Handlers) event(c tele.Context, kind dialog.EventKind) dialog.Event {
	ev := dialog.Event{Kind: kind, Text: c.Text()}
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
	}
	if m := c.Message(); m != nil {
		ev.MessageID = m.ID
	}
	return ev
}

func (h *Handlers) dispatch(c tele.Context, ev dialog.Event) error {
	err := h.opts.Engine.Dispatch(tghelpers.BuildContext(c), ev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dialog.ErrBusy):
		return tghelpers.SendText(c, msgBusy)
	case errors.Is(err, dialog.ErrClosed):
		return tghelpers.SendText(c, msgShuttingDown)
	}
	return err
}

func (h *Handlers) listSessions(c tele.Context) error {
	if h.opts.Sessions == nil {
		return tghelpers.SendText(c, msgNoSessionList)
	}
	records, err := h.opts.Sessions(tghelpers.BuildContext(c))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return tghelpers.SendText(c, msgNoSessions)
	}
	var b strings.Builder
	sessionstore.WriteTable(&b, records, h.opts.Now())
	return tghelpers.SendText(c, format.Pre(b.String()), &tele.SendOptions{ParseMode: tele.ModeHTML})
}

// InProgress reports whether the user is answering a prompt.
func (h *Handlers) InProgress(userID int64) bool {
	switch h.opts.Engine.State(userID) {
	case dialog.StateIdle, dialog.StateConnected:
		return false
	}
	return true
}

// HandleMessage forwards a prompt answer, text or document, to the engine.
func (h *Handlers) HandleMessage(c tele.Context) error {
	if m := c.Message(); m != nil && m.Document != nil {
		return h.document(c)
	}
	return h.text(c)
}

// Redact reports whether the user's next message may be a secret. The state
// lags behind queued events, so anything sent during the login prompts or
// while earlier events are still pending is redacted.
func (h *Handlers) Redact(userID int64) bool {
	switch h.opts.Engine.State(userID) {
	case dialog.StateAwaitingAuthMethod, dialog.StateAwaitingHost,
		dialog.StateAwaitingUsername, dialog.StateAwaitingSecret:
		return true
	}
	return h.opts.Engine.Pending(userID)
}

// UnknownText handles text outside prompts: shell commands when connected.
func (h *Handlers) UnknownText() tele.HandlerFunc { return h.text }

// UnknownDocument handles documents outside prompts: uploads when connected.
func (h *Handlers) UnknownDocument() tele.HandlerFunc { return h.document }

// UnknownCallback answers buttons from older versions of the keyboards.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.Notify(c, msgUnsupported)
	}
}

// Denied answers users that are not on the allow list.
func (h *Handlers) Denied(c tele.Context) error {
	return tghelpers.Notify(c, msgDenied)
}

// AdminOnly answers non-admins calling an admin command.
func (h *Handlers) AdminOnly(c tele.Context) error {
	return tghelpers.SendText(c, msgAdminOnly)
}

// Limited answers users hitting the rate limit.
func (h *Handlers) Limited(c tele.Context) error {
	return tghelpers.Notify(c, msgLimited)
}
