package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/internal/remote"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

// onRestore reconnects a session persisted before the last shutdown.
func (e *Engine) onRestore(t *turn) Dialog {
	rec := t.ev.record
	if rec == nil {
		return t.dlg
	}
	if t.sess != nil {
		// the user reconnected already and their record was replaced
		return t.dlg
	}
	if t.dlg.Step != StateIdle {
		e.forgetRecord(t.ctx, rec.UserID)
		return t.dlg
	}

	target := remote.Target{Host: rec.Host, Port: rec.Port, Username: rec.Username}
	if len(rec.SealedCredential) == 0 || !e.sealer.Enabled() {
		return e.restoreFailed(t, rec, errors.New("credentials are not kept across restarts"))
	}
	cred, err := sessionstore.OpenCredential(e.sealer, rec.SealedCredential)
	if err != nil {
		return e.restoreFailed(t, rec, err)
	}
	defer cred.Wipe()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RestoreBackoff
	b.MaxInterval = 10 * e.cfg.RestoreBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.RestoreAttempts-1)), t.ctx)

	attempt := 0
	conn, err := backoff.RetryWithData[remote.Conn](func() (remote.Conn, error) {
		attempt++
		ctx, cancel := context.WithTimeout(t.ctx, e.cfg.ConnectTimeout)
		defer cancel()
		c, err := e.dialer.Connect(ctx, target, cred)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, remote.ErrAuth), errors.Is(err, remote.ErrHostKey), errors.Is(err, remote.ErrCanceled):
			return nil, backoff.Permanent(err)
		}
		logger.Debug(t.ctx, logger.ComponentSSH, "restore_retry",
			slog.Int64("user_id", rec.UserID),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		return nil, err
	}, policy)
	cred.Wipe()
	if err != nil {
		return e.restoreFailed(t, rec, err)
	}

	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	home := loginDir(ctx, conn)
	cwd := home
	if rec.RemoteCWD != "" && rec.RemoteCWD != home {
		res, err := conn.Execute(ctx, remote.Command{Line: "cd " + remote.Quote(rec.RemoteCWD) + " && pwd"})
		if err == nil && res.ExitCode == 0 {
			cwd = lastLine(res.Stdout)
		}
	}

	now := e.now()
	sess := &Session{
		ID:           rec.SessionID,
		UserID:       rec.UserID,
		Host:         rec.Host,
		Port:         rec.Port,
		Username:     rec.Username,
		AuthMethod:   remote.AuthMethod(rec.AuthMethod),
		RemoteCWD:    cwd,
		Home:         home,
		ConnectedAt:  rec.ConnectedAt,
		LastActivity: now,
		conn:         conn,
		sealed:       rec.SealedCredential,
	}
	if sess.ID == "" {
		sess.ID = e.newID()
	}
	e.sessions.Put(sess)
	t.sess = sess
	e.saveSession(t.ctx, sess)

	logger.Info(t.ctx, logger.ComponentSSH, "session_restored",
		slog.Int64("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("host", sess.Host),
		slog.Int("attempt", attempt),
		slog.Bool("restored", true),
	)
	e.reply(t, Reply{
		Text: fmt.Sprintf("♻️ Session restored: %s as %s\n📁 %s", target.Addr(), target.Username, displayCWD(sess)),
		Menu: MenuConnected,
	})
	return Dialog{Step: StateConnected}
}

func (e *Engine) restoreFailed(t *turn, rec *sessionstore.Record, err error) Dialog {
	if t.ctx.Err() != nil {
		// shutting down or preempted; the record is kept for the next start
		return t.dlg
	}
	logger.Warn(t.ctx, logger.ComponentSSH, "restore_failed",
		slog.Int64("user_id", rec.UserID),
		slog.String("session_id", rec.SessionID),
		slog.String("host", rec.Host),
		slog.Bool("restored", false),
		slog.String("err", err.Error()),
	)
	e.forgetRecord(t.ctx, rec.UserID)
	addr := remote.Target{Host: rec.Host, Port: rec.Port}.Addr()
	e.reply(t, Reply{
		Text: fmt.Sprintf("⚠️ Your session to %s could not be restored after a restart (%s). Use /connect to reconnect.", addr, describe(err)),
		Menu: MenuMain,
	})
	return Dialog{Step: StateIdle}
}
