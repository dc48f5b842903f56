package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/internal/remote"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

// maxKeyFileSize caps private key uploads.
const maxKeyFileSize = 64 << 10

func (e *Engine) actStart(t *turn) Dialog {
	if t.sess != nil {
		e.reply(t, Reply{Text: fmt.Sprintf("🖥 Connected to %s as %s\n📁 %s", t.sess.Target().Addr(), t.sess.Username, displayCWD(t.sess)), Menu: MenuConnected})
	} else {
		e.reply(t, Reply{Text: msgWelcome, Menu: MenuMain})
	}
	return e.rest(t)
}

func (e *Engine) actHelp(t *turn) Dialog {
	e.reply(t, Reply{Text: msgHelp, Menu: e.menuFor(t)})
	return t.dlg
}

func (e *Engine) onIdleText(t *turn) Dialog {
	e.reply(t, Reply{Text: msgNotConnected, Menu: MenuMain})
	return t.dlg
}

func (e *Engine) actConnect(t *turn) Dialog {
	if t.sess != nil {
		e.reply(t, Reply{
			Text: fmt.Sprintf("Already connected to %s as %s. Use /disconnect first.", t.sess.Target().Addr(), t.sess.Username),
			Menu: MenuConnected,
		})
		return t.dlg
	}
	e.reply(t, Reply{Text: msgChooseMethod, Menu: MenuAuthMethod})
	return Dialog{Step: StateAwaitingAuthMethod}
}

func (e *Engine) actAuthMethod(t *turn) Dialog {
	if t.ev.Action == ActionAuthKey {
		return e.chooseMethod(t, remote.AuthKey)
	}
	return e.chooseMethod(t, remote.AuthPassword)
}

func (e *Engine) onAuthMethodText(t *turn) Dialog {
	m := remote.AuthMethod(strings.ToLower(strings.TrimSpace(t.ev.Text)))
	if !m.Valid() {
		err := invalid("auth method", "type password or key")
		e.reply(t, Reply{Text: "❌ " + err.Error(), Menu: MenuAuthMethod})
		next := t.dlg
		next.Err = err
		return next
	}
	return e.chooseMethod(t, m)
}

func (e *Engine) chooseMethod(t *turn, m remote.AuthMethod) Dialog {
	e.reply(t, Reply{Text: fmt.Sprintf(msgEnterHost, e.cfg.DefaultPort), Menu: MenuCancel})
	return Dialog{Step: StateAwaitingHost, AuthMethod: m}
}

func (e *Engine) onHost(t *turn) Dialog {
	host, port, err := ParseHost(t.ev.Text, e.cfg.DefaultPort)
	if err != nil {
		e.reply(t, Reply{Text: "❌ " + err.Error() + "\nTry again:", Menu: MenuCancel})
		next := t.dlg
		next.Err = err
		return next
	}
	e.reply(t, Reply{Text: msgEnterUsername, Menu: MenuCancel})
	return Dialog{Step: StateAwaitingUsername, AuthMethod: t.dlg.AuthMethod, Host: host, Port: port}
}

func (e *Engine) onUsername(t *turn) Dialog {
	user, err := ValidateUsername(t.ev.Text)
	if err != nil {
		e.reply(t, Reply{Text: "❌ " + err.Error() + "\nTry again:", Menu: MenuCancel})
		next := t.dlg
		next.Err = err
		return next
	}
	prompt := msgEnterPassword
	if t.dlg.AuthMethod == remote.AuthKey {
		prompt = msgEnterKey
	}
	e.reply(t, Reply{Text: prompt, Menu: MenuCancel})
	next := t.dlg
	next.Step = StateAwaitingSecret
	next.Username = user
	next.Err = nil
	return next
}

func (e *Engine) onSecretText(t *turn) Dialog {
	e.deleteMessage(t)
	text := t.ev.Text
	if t.dlg.AuthMethod == remote.AuthKey {
		text = strings.TrimSpace(text)
	}
	secret := []byte(text)
	t.ev.Text = ""
	cred := remote.Credential{Method: t.dlg.AuthMethod, Secret: secret}
	return e.authenticate(t, &cred)
}

func (e *Engine) onSecretDocument(t *turn) Dialog {
	if t.dlg.AuthMethod != remote.AuthKey {
		e.reply(t, Reply{Text: "Send the password as a text message.", Menu: MenuCancel})
		return t.dlg
	}
	e.deleteMessage(t)
	doc := t.ev.Document
	if doc == nil || doc.Fetch == nil || doc.Size > maxKeyFileSize {
		err := invalid("private key", "expected a key file up to %s", humanize.IBytes(maxKeyFileSize))
		e.reply(t, Reply{Text: "❌ " + err.Error(), Menu: MenuCancel})
		next := t.dlg
		next.Err = err
		return next
	}
	fetchCtx, cancel := context.WithTimeout(t.ctx, e.cfg.ConnectTimeout)
	data, err := doc.Fetch(fetchCtx)
	cancel()
	if err != nil {
		e.fail(t, "Could not read the key file", err)
		return t.dlg
	}
	cred := remote.Credential{Method: remote.AuthKey, Secret: data}
	return e.authenticate(t, &cred)
}

// authenticate opens the session. cred is wiped on every path.
func (e *Engine) authenticate(t *turn, cred *remote.Credential) Dialog {
	defer cred.Wipe()

	if cred.Empty() {
		err := invalid("secret", "must not be empty")
		e.reply(t, Reply{Text: "❌ " + err.Error(), Menu: MenuCancel})
		next := t.dlg
		next.Err = err
		return next
	}
	if cred.Method == remote.AuthKey {
		if err := remote.ValidatePrivateKey(cred.Secret); err != nil {
			verr := invalid("private key", "%v", err)
			e.reply(t, Reply{Text: "❌ " + verr.Error(), Menu: MenuCancel})
			next := t.dlg
			next.Err = verr
			return next
		}
	}

	sealed, err := sessionstore.SealCredential(e.sealer, *cred)
	if err != nil {
		logger.Warn(t.ctx, logger.ComponentDialog, "credential_seal_failed",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("err", err.Error()),
		)
		sealed = nil
	}

	target := remote.Target{Host: t.dlg.Host, Port: t.dlg.Port, Username: t.dlg.Username}
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.ConnectTimeout)
	defer cancel()
	started := e.now()
	conn, err := e.dialer.Connect(ctx, target, *cred)
	cred.Wipe()
	if err != nil {
		logger.Warn(t.ctx, logger.ComponentSSH, "connect_failed",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("host", target.Host),
			slog.Int("port", target.Port),
			slog.String("ssh_user", target.Username),
			slog.String("auth_method", string(t.dlg.AuthMethod)),
			slog.String("err", err.Error()),
		)
		e.reply(t, Reply{Text: "❌ Connection failed: " + describe(err) + "\n" + fmt.Sprintf(msgEnterHost, e.cfg.DefaultPort), Menu: MenuCancel})
		return Dialog{Step: StateAwaitingHost, AuthMethod: t.dlg.AuthMethod, Err: err}
	}

	home := loginDir(ctx, conn)
	now := e.now()
	sess := &Session{
		ID:           e.newID(),
		UserID:       t.ev.UserID,
		Host:         target.Host,
		Port:         target.Port,
		Username:     target.Username,
		AuthMethod:   t.dlg.AuthMethod,
		RemoteCWD:    home,
		Home:         home,
		ConnectedAt:  now,
		LastActivity: now,
		conn:         conn,
		sealed:       sealed,
	}
	e.sessions.Put(sess)
	t.sess = sess
	e.saveSession(t.ctx, sess)

	logger.Info(t.ctx, logger.ComponentSSH, "connected",
		slog.Int64("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("host", sess.Host),
		slog.Int("port", sess.Port),
		slog.String("ssh_user", sess.Username),
		slog.String("auth_method", string(sess.AuthMethod)),
		slog.Duration("took", logger.RoundMS(now.Sub(started))),
	)
	e.reply(t, Reply{
		Text: fmt.Sprintf("✅ Connected to %s as %s\n📁 %s", target.Addr(), target.Username, displayCWD(sess)),
		Menu: MenuConnected,
	})
	return Dialog{Step: StateConnected}
}

// loginDir asks the shell for the directory a fresh session starts in.
func loginDir(ctx context.Context, conn remote.Conn) string {
	res, err := conn.Execute(ctx, remote.Command{Line: "pwd"})
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return lastLine(res.Stdout)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func displayCWD(s *Session) string {
	if s.RemoteCWD == "" {
		return "~"
	}
	return s.RemoteCWD
}

func (e *Engine) deleteMessage(t *turn) {
	if t.ev.MessageID == 0 {
		return
	}
	if err := e.replier.Delete(context.WithoutCancel(t.ctx), t.ev.UserID, t.ev.MessageID); err != nil {
		logger.Warn(t.ctx, logger.ComponentDialog, "secret_message_delete_failed",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) actDisconnect(t *turn) Dialog {
	if t.sess == nil {
		e.forgetRecord(t.ctx, t.ev.UserID)
		e.reply(t, Reply{Text: msgNotConnected, Menu: MenuMain})
		return Dialog{Step: StateIdle}
	}
	addr := t.sess.Target().Addr()
	e.closeSession(t.ctx, t.sess, true)
	t.sess = nil
	e.reply(t, Reply{Text: "🔌 Disconnected from " + addr + ".", Menu: MenuMain})
	return Dialog{Step: StateIdle}
}

func (e *Engine) actStatus(t *turn) Dialog {
	if t.sess == nil {
		e.reply(t, Reply{Text: msgNotConnected, Menu: MenuMain})
		return t.dlg
	}
	s := t.sess
	now := e.now()
	text := fmt.Sprintf("🟢 Connected\n\nHost: %s\nUser: %s\nAuth: %s\nDirectory: %s\nSession: %s\nConnected: %s (%s)\nIdle timeout: %s",
		s.Target().Addr(),
		s.Username,
		s.AuthMethod,
		displayCWD(s),
		s.ID,
		humanize.RelTime(s.ConnectedAt, now, "ago", "from now"),
		s.ConnectedAt.UTC().Format(time.DateTime),
		e.cfg.IdleTimeout,
	)
	e.reply(t, Reply{Text: text, Menu: MenuConnected})
	return t.dlg
}

func (e *Engine) actCancel(t *turn) Dialog {
	switch t.dlg.Step {
	case StateIdle, StateConnected:
		e.reply(t, Reply{Text: msgNothingToCancel, Menu: e.menuFor(t)})
		return t.dlg
	case StateAwaitingFileEditContent:
		e.reply(t, Reply{Text: "✖️ Edit cancelled, the file was not changed.", Menu: e.menuFor(t)})
	default:
		e.reply(t, Reply{Text: msgCancelled, Menu: e.menuFor(t)})
	}
	return e.rest(t)
}

// expireIfIdle closes a session whose last activity is older than the idle
// timeout, or drops a prompt left unanswered for that long. The event is then
// handled as if the user were idle.
func (e *Engine) expireIfIdle(t *turn) {
	if e.cfg.IdleTimeout <= 0 {
		return
	}
	if t.sess == nil {
		e.expirePrompt(t)
		return
	}
	idle := e.now().Sub(t.sess.LastActivity)
	if idle < e.cfg.IdleTimeout {
		return
	}
	addr := t.sess.Target().Addr()
	logger.Info(t.ctx, logger.ComponentDialog, "session_expired",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("session_id", t.sess.ID),
		slog.Duration("idle", idle.Round(time.Second)),
	)
	e.closeSession(t.ctx, t.sess, true)
	t.sess = nil
	t.dlg = Dialog{UserID: t.ev.UserID, Step: StateIdle}
	e.reply(t, Reply{
		Text: fmt.Sprintf("⏱ Session to %s closed after %s of inactivity. Use /connect to reconnect.", addr, e.cfg.IdleTimeout),
		Menu: MenuMain,
	})
}

func (e *Engine) expirePrompt(t *turn) {
	if t.dlg.Step == StateIdle || t.dlg.UpdatedAt.IsZero() {
		return
	}
	idle := e.now().Sub(t.dlg.UpdatedAt)
	if idle < e.cfg.IdleTimeout {
		return
	}
	logger.Info(t.ctx, logger.ComponentDialog, "prompt_expired",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("state", string(t.dlg.Step)),
		slog.Duration("idle", idle.Round(time.Second)),
	)
	t.dlg = Dialog{UserID: t.ev.UserID, Step: StateIdle}
	e.reply(t, Reply{
		Text: fmt.Sprintf("⏱ The pending prompt expired after %s of inactivity. Use /connect to start again.", e.cfg.IdleTimeout),
		Menu: MenuMain,
	})
}

// closeSession drops the live session and optionally its persisted record.
func (e *Engine) closeSession(ctx context.Context, s *Session, forget bool) {
	if err := s.conn.Close(); err != nil {
		logger.Debug(ctx, logger.ComponentSSH, "close_failed",
			slog.String("session_id", s.ID),
			slog.String("err", err.Error()),
		)
	}
	e.sessions.Remove(s.UserID)
	if forget {
		e.forgetRecord(ctx, s.UserID)
	}
	logger.Info(ctx, logger.ComponentSSH, "disconnected",
		slog.Int64("user_id", s.UserID),
		slog.String("session_id", s.ID),
	)
}

func (e *Engine) saveSession(ctx context.Context, s *Session) {
	if err := e.store.Save(context.WithoutCancel(ctx), s.record(e.now())); err != nil {
		e.storeFailed(ctx, "save", s.UserID, err)
	}
}

func (e *Engine) forgetRecord(ctx context.Context, userID int64) {
	if err := e.store.Delete(context.WithoutCancel(ctx), userID); err != nil {
		e.storeFailed(ctx, "delete", userID, err)
	}
}

func (e *Engine) storeCWD(ctx context.Context, s *Session) {
	if err := e.store.UpdateCWD(context.WithoutCancel(ctx), s.UserID, s.RemoteCWD); err != nil {
		e.storeFailed(ctx, "update_cwd", s.UserID, err)
	}
}

// storeFailed logs a persistence error; the engine keeps going in memory.
func (e *Engine) storeFailed(ctx context.Context, op string, userID int64, err error) {
	code := ""
	var serr *sessionstore.StoreError
	if errors.As(err, &serr) {
		code = serr.Code()
	}
	logger.Error(ctx, logger.ComponentStore, "store_failed",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("code", code),
		slog.String("err", err.Error()),
	)
}
