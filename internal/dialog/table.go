package dialog

import (
	"context"
	"log/slog"

	"github.com/m3rciful/sshbot/core/logger"
)

// turn is the working set of one transition.
type turn struct {
	ctx  context.Context
	ev   Event
	dlg  Dialog
	sess *Session
}

// step computes the next Dialog. It may reply and touch the session.
type step func(e *Engine, t *turn) Dialog

// transitionTable maps (state, event kind) to a step. Missing pairs get an
// "unexpected input" reply and keep the state.
func transitionTable() map[State]map[EventKind]step {
	common := func(extra map[EventKind]step) map[EventKind]step {
		row := map[EventKind]step{
			EventButton:    (*Engine).onAction,
			EventCommand:   (*Engine).onAction,
			eventIdleCheck: (*Engine).onIdleCheck,
			eventRestore:   (*Engine).onRestore,
		}
		for k, fn := range extra {
			row[k] = fn
		}
		return row
	}
	return map[State]map[EventKind]step{
		StateIdle: common(map[EventKind]step{
			EventText: (*Engine).onIdleText,
		}),
		StateAwaitingAuthMethod: common(map[EventKind]step{
			EventText: (*Engine).onAuthMethodText,
		}),
		StateAwaitingHost: common(map[EventKind]step{
			EventText: (*Engine).onHost,
		}),
		StateAwaitingUsername: common(map[EventKind]step{
			EventText: (*Engine).onUsername,
		}),
		StateAwaitingSecret: common(map[EventKind]step{
			EventText:     (*Engine).onSecretText,
			EventDocument: (*Engine).onSecretDocument,
		}),
		StateConnected: common(map[EventKind]step{
			EventText:     (*Engine).onCommand,
			EventDocument: (*Engine).onUpload,
		}),
		StateAwaitingPath: common(map[EventKind]step{
			EventText: (*Engine).onPath,
		}),
		StateAwaitingFileEditContent: common(map[EventKind]step{
			EventText:     (*Engine).onEditText,
			EventDocument: (*Engine).onEditDocument,
		}),
	}
}

type actionSpec struct {
	run          step
	needsSession bool
	// states, when set, restricts where the action is accepted.
	states []State
}

func actionTable() map[Action]actionSpec {
	session := func(fn step) actionSpec { return actionSpec{run: fn, needsSession: true} }
	return map[Action]actionSpec{
		ActionStart:        {run: (*Engine).actStart},
		ActionMenu:         {run: (*Engine).actStart},
		ActionHelp:         {run: (*Engine).actHelp},
		ActionConnect:      {run: (*Engine).actConnect},
		ActionAuthPassword: {run: (*Engine).actAuthMethod, states: []State{StateAwaitingAuthMethod}},
		ActionAuthKey:      {run: (*Engine).actAuthMethod, states: []State{StateAwaitingAuthMethod}},
		ActionDisconnect:   {run: (*Engine).actDisconnect},
		ActionStatus:       {run: (*Engine).actStatus},
		ActionCancel:       {run: (*Engine).actCancel},
		ActionPage:         {run: (*Engine).actPage},

		ActionFiles:    session((*Engine).actFilesMenu),
		ActionBrowse:   session((*Engine).actBrowse),
		ActionPwd:      session((*Engine).actPwd),
		ActionHome:     session((*Engine).actHome),
		ActionUpload:   session((*Engine).actUploadHint),
		ActionDownload: session(prompt(PurposeDownload)),
		ActionEdit:     session(prompt(PurposeEdit)),
		ActionMkdir:    session(prompt(PurposeMkdir)),
		ActionTouch:    session(prompt(PurposeTouch)),
		ActionSearch:   session(prompt(PurposeSearch)),
		ActionCD:       session(prompt(PurposeCD)),
		ActionDisk:     session((*Engine).actDisk),

		ActionMonitor:    session((*Engine).actMonitorMenu),
		ActionMonitorRun: session((*Engine).actMonitorRun),
		ActionQuick:      session((*Engine).actQuickMenu),
		ActionQuickRun:   session((*Engine).actQuickRun),
	}
}

func (e *Engine) onAction(t *turn) Dialog {
	spec, ok := e.actions[t.ev.Action]
	if !ok {
		return e.unexpected(t)
	}
	if len(spec.states) > 0 && !containsState(spec.states, t.dlg.Step) {
		return e.unexpected(t)
	}
	if spec.needsSession && t.sess == nil {
		e.reply(t, Reply{Text: msgNotConnected, Menu: MenuMain})
		return t.dlg
	}
	return spec.run(e, t)
}

func containsState(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func (e *Engine) unexpected(t *turn) Dialog {
	logger.Debug(t.ctx, logger.ComponentDialog, "unexpected_input",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("state", string(t.dlg.Step)),
		slog.String("kind", t.ev.Kind.String()),
		slog.String("action", string(t.ev.Action)),
	)
	e.reply(t, Reply{Text: msgUnexpected + hintFor(t.dlg), Menu: e.menuFor(t)})
	return t.dlg
}

func (e *Engine) onIdleCheck(t *turn) Dialog {
	return t.dlg
}

// rest is the dialog a finished or abandoned flow falls back to.
func (e *Engine) rest(t *turn) Dialog {
	if t.sess != nil {
		return Dialog{Step: StateConnected}
	}
	return Dialog{Step: StateIdle}
}

func (e *Engine) menuFor(t *turn) Menu {
	if t.sess != nil {
		return MenuConnected
	}
	return MenuMain
}

// reply sends r unless the step was preempted.
func (e *Engine) reply(t *turn, r Reply) {
	if preempted(t.ctx) {
		return
	}
	if err := e.replier.Reply(context.WithoutCancel(t.ctx), t.ev.UserID, r); err != nil {
		logger.Warn(t.ctx, logger.ComponentDialog, "reply_failed",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) fail(t *turn, text string, err error) {
	e.reply(t, Reply{Text: "❌ " + text + ": " + describe(err), Menu: e.menuFor(t)})
}
