package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/internal/files"
	"github.com/m3rciful/sshbot/internal/monitor"
	"github.com/m3rciful/sshbot/internal/paginate"
	"github.com/m3rciful/sshbot/internal/remote"
)

func (e *Engine) onCommand(t *turn) Dialog {
	line := strings.TrimSpace(t.ev.Text)
	if line == "" {
		e.reply(t, Reply{Text: "Send a shell command.", Menu: MenuConnected})
		return t.dlg
	}
	if arg, ok := cdArgument(line); ok {
		return e.changeDir(t, arg)
	}
	return e.runLine(t, line)
}

// cdArgument recognizes a plain "cd [dir]" without shell operators.
func cdArgument(line string) (string, bool) {
	if line != "cd" && !strings.HasPrefix(line, "cd ") {
		return "", false
	}
	if strings.ContainsAny(line, ";&|<>`$()") {
		return "", false
	}
	arg := strings.TrimSpace(strings.TrimPrefix(line, "cd"))
	if len(arg) >= 2 && (arg[0] == '"' || arg[0] == '\'') && arg[len(arg)-1] == arg[0] {
		arg = arg[1 : len(arg)-1]
	}
	return arg, true
}

func (e *Engine) runLine(t *turn, line string) Dialog {
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()

	started := e.now()
	res, err := t.sess.conn.Execute(ctx, remote.Command{Dir: t.sess.RemoteCWD, Line: line})
	if err != nil {
		return e.remoteFailure(t, "Command failed", err)
	}
	logger.Debug(t.ctx, logger.ComponentSSH, "command_done",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("session_id", t.sess.ID),
		slog.Int("exit_code", res.ExitCode),
		slog.Int("bytes", len(res.Stdout)+len(res.Stderr)),
		slog.Duration("took", logger.RoundMS(e.now().Sub(started))),
	)
	return e.showOutput(t, formatResult(line, res), Dialog{Step: StateConnected})
}

func formatResult(line string, res remote.Result) string {
	var b strings.Builder
	b.WriteString("$ ")
	b.WriteString(line)
	b.WriteByte('\n')
	out := strings.TrimRight(res.Stdout, "\n")
	errOut := strings.TrimRight(res.Stderr, "\n")
	if out != "" {
		b.WriteString(out)
		b.WriteByte('\n')
	}
	if errOut != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(errOut)
		b.WriteByte('\n')
	}
	if out == "" && errOut == "" {
		b.WriteString("(no output)\n")
	}
	if res.ExitCode != 0 {
		fmt.Fprintf(&b, "\n[exit code %d]", res.ExitCode)
	}
	return strings.TrimRight(b.String(), "\n")
}

// showOutput truncates and paginates text, sends the first page and keeps the
// pages on next.
func (e *Engine) showOutput(t *turn, text string, next Dialog) Dialog {
	text = paginate.Truncate(text, e.cfg.MaxOutputLength)
	pages, err := paginate.Paginate(text, e.cfg.PageSize)
	if err != nil {
		pages = []string{text}
	}
	view := &OutputView{Pages: pages}
	r := Reply{Text: pages[0], Mono: true, Menu: MenuConnected}
	if next.Step == StateAwaitingFileEditContent {
		r.Menu = MenuCancel
	}
	if len(pages) > 1 {
		v := view.View()
		r.Page = &v
	}
	e.reply(t, r)
	next.Output = view
	return next
}

func (e *Engine) changeDir(t *turn, arg string) Dialog {
	target := t.sess.Home
	if arg != "" {
		target = files.Resolve(t.sess.RemoteCWD, t.sess.Home, arg)
	}
	line := "cd && pwd"
	if target != "" {
		line = "cd " + remote.Quote(target) + " && pwd"
	}

	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	res, err := t.sess.conn.Execute(ctx, remote.Command{Dir: t.sess.RemoteCWD, Line: line})
	if err != nil {
		return e.remoteFailure(t, "cd failed", err)
	}
	if res.ExitCode != 0 {
		reason := strings.TrimSpace(res.Stderr)
		if reason == "" {
			reason = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		e.reply(t, Reply{Text: "❌ " + reason, Menu: MenuConnected})
		return Dialog{Step: StateConnected}
	}

	t.sess.RemoteCWD = lastLine(res.Stdout)
	e.storeCWD(t.ctx, t.sess)
	e.reply(t, Reply{Text: "📁 " + displayCWD(t.sess), Menu: MenuConnected})
	return Dialog{Step: StateConnected}
}

// remoteFailure reports err. A dead transport ends the session.
func (e *Engine) remoteFailure(t *turn, what string, err error) Dialog {
	switch {
	case errors.Is(err, remote.ErrCanceled):
		return t.dlg
	case remote.Transport(err):
		addr := t.sess.Target().Addr()
		logger.Warn(t.ctx, logger.ComponentSSH, "connection_lost",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("session_id", t.sess.ID),
			slog.String("err", err.Error()),
		)
		e.closeSession(t.ctx, t.sess, true)
		t.sess = nil
		e.reply(t, Reply{Text: "🔌 Connection to " + addr + " lost: " + describe(err) + ". Use /connect to reconnect.", Menu: MenuMain})
		return Dialog{Step: StateIdle}
	case errors.Is(err, remote.ErrTimeout):
		e.reply(t, Reply{Text: fmt.Sprintf("⏱ %s: timed out after %s.", what, e.cfg.CommandTimeout), Menu: MenuConnected})
		return Dialog{Step: StateConnected}
	default:
		e.fail(t, what, err)
		return Dialog{Step: StateConnected}
	}
}

func (e *Engine) actPage(t *turn) Dialog {
	if t.dlg.Output == nil {
		e.reply(t, Reply{Text: "❌ No output to page through.", Menu: e.menuFor(t)})
		return t.dlg
	}
	idx, err := strconv.Atoi(strings.TrimSpace(t.ev.Payload))
	if err != nil {
		idx = -1
	}
	text, err := paginate.Page(t.dlg.Output.Pages, idx)
	if err != nil {
		e.reply(t, Reply{Text: "❌ " + err.Error(), Menu: e.menuFor(t)})
		return t.dlg
	}
	view := *t.dlg.Output
	view.Index = idx
	v := view.View()
	e.reply(t, Reply{Text: text, Mono: true, Page: &v, EditMessageID: t.ev.MessageID, Menu: e.pageMenu(t)})

	next := t.dlg
	next.Output = &view
	return next
}

func (e *Engine) pageMenu(t *turn) Menu {
	if t.dlg.Step == StateAwaitingFileEditContent {
		return MenuCancel
	}
	return e.menuFor(t)
}

func (e *Engine) actMonitorMenu(t *turn) Dialog {
	e.reply(t, Reply{Text: "📈 System monitor:", Menu: MenuMonitor})
	return e.rest(t)
}

func (e *Engine) actMonitorRun(t *turn) Dialog {
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	text, err := monitor.Run(ctx, t.sess.conn, t.ev.Payload, t.sess.RemoteCWD, e.cfg.MaxConnectionsPerUser)
	if err != nil {
		if errors.Is(err, monitor.ErrUnknownReport) {
			return e.unexpected(t)
		}
		return e.remoteFailure(t, "Monitor failed", err)
	}
	return e.showOutput(t, text, Dialog{Step: StateConnected})
}

func (e *Engine) actQuickMenu(t *turn) Dialog {
	e.reply(t, Reply{Text: "⚡ Quick commands:", Menu: MenuQuick})
	return e.rest(t)
}

func (e *Engine) actQuickRun(t *turn) Dialog {
	q, ok := monitor.Quick(t.ev.Payload)
	if !ok {
		return e.unexpected(t)
	}
	return e.runLine(t, q.Line)
}

func (e *Engine) actDisk(t *turn) Dialog {
	return e.runLine(t, "df -h")
}
