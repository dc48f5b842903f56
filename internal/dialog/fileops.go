package dialog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/internal/files"
	"github.com/m3rciful/sshbot/internal/remote"
)

var promptText = map[Purpose]string{
	PurposeDownload: "📥 Enter the path of the file to download:",
	PurposeEdit:     "✏️ Enter the path of the file to edit:",
	PurposeMkdir:    "📁 Enter the name of the new directory:",
	PurposeTouch:    "📄 Enter the name of the new file:",
	PurposeSearch:   "🔍 Enter a glob pattern, for example *.log or src/**/*.go:",
	PurposeCD:       "📂 Enter the directory to change to:",
}

// prompt asks for a path; the answer is handled by onPath.
func prompt(p Purpose) step {
	return func(e *Engine, t *turn) Dialog {
		e.reply(t, Reply{Text: promptText[p] + "\n📁 " + displayCWD(t.sess), Menu: MenuCancel})
		return Dialog{Step: StateAwaitingPath, Purpose: p, Output: t.dlg.Output}
	}
}

func (e *Engine) actFilesMenu(t *turn) Dialog {
	e.reply(t, Reply{Text: "🗂 File manager\n📁 " + displayCWD(t.sess), Menu: MenuFiles})
	return e.rest(t)
}

func (e *Engine) actPwd(t *turn) Dialog {
	e.reply(t, Reply{Text: "📁 " + displayCWD(t.sess), Menu: MenuFiles})
	return e.rest(t)
}

func (e *Engine) actHome(t *turn) Dialog {
	return e.changeDir(t, "")
}

func (e *Engine) actUploadHint(t *turn) Dialog {
	e.reply(t, Reply{
		Text: fmt.Sprintf("📤 Send a document to upload it to %s (up to %s).\nPut a path in the caption to store it elsewhere.",
			displayCWD(t.sess), humanize.IBytes(uint64(e.cfg.MaxTransferSize))),
		Menu: MenuFiles,
	})
	return e.rest(t)
}

func (e *Engine) actBrowse(t *turn) Dialog {
	dir := t.sess.RemoteCWD
	if dir == "" {
		dir = "."
	}
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	entries, err := t.sess.conn.ReadDir(ctx, dir)
	if err != nil {
		return e.remoteFailure(t, "Cannot list "+dir, err)
	}
	return e.showOutput(t, strings.TrimRight(files.RenderListing(displayCWD(t.sess), entries), "\n"), Dialog{Step: StateConnected})
}

func (e *Engine) onPath(t *turn) Dialog {
	input := strings.TrimSpace(t.ev.Text)
	if err := files.ValidName(input); err != nil {
		verr := invalid("path", "%v", err)
		e.reply(t, Reply{Text: "❌ " + verr.Error() + "\nTry again:", Menu: MenuCancel})
		next := t.dlg
		next.Err = verr
		return next
	}
	p := files.Resolve(t.sess.RemoteCWD, t.sess.Home, input)

	switch t.dlg.Purpose {
	case PurposeDownload:
		return e.download(t, p)
	case PurposeEdit:
		return e.openEdit(t, p)
	case PurposeMkdir:
		return e.mutate(t, "mkdir -p -- "+remote.Quote(p), "📁 Created "+p)
	case PurposeTouch:
		return e.mutate(t, "touch -- "+remote.Quote(p), "📄 Created "+p)
	case PurposeSearch:
		return e.search(t, input)
	case PurposeCD:
		return e.changeDir(t, input)
	default:
		return e.unexpected(t)
	}
}

func (e *Engine) mutate(t *turn, line, done string) Dialog {
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	res, err := t.sess.conn.Execute(ctx, remote.Command{Dir: t.sess.RemoteCWD, Line: line})
	if err != nil {
		return e.remoteFailure(t, "Operation failed", err)
	}
	if res.ExitCode != 0 {
		e.reply(t, Reply{Text: "❌ " + strings.TrimSpace(res.Stderr), Menu: MenuFiles})
		return Dialog{Step: StateConnected}
	}
	e.reply(t, Reply{Text: done, Menu: MenuFiles})
	return Dialog{Step: StateConnected}
}

func (e *Engine) search(t *turn, pattern string) Dialog {
	root := t.sess.RemoteCWD
	if root == "" {
		root = "."
	}
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	res, err := files.Search(ctx, t.sess.conn, root, pattern, files.SearchOptions{MaxResults: e.cfg.SearchMaxResults})
	if err != nil {
		if ctx.Err() != nil && t.ctx.Err() == nil {
			err = &remote.Error{Op: "search", Kind: remote.ErrTimeout, Err: err}
		}
		return e.remoteFailure(t, "Search failed", err)
	}
	return e.showOutput(t, strings.TrimRight(res.Render(), "\n"), Dialog{Step: StateConnected})
}

func (e *Engine) download(t *turn, p string) Dialog {
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	data, err := t.sess.conn.Download(ctx, p, e.cfg.MaxTransferSize)
	if err != nil {
		return e.remoteFailure(t, "Download of "+p+" failed", err)
	}
	logger.Info(t.ctx, logger.ComponentSSH, "download",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("remote_path", p),
		slog.Int("bytes", len(data)),
	)
	e.reply(t, Reply{
		Text:     fmt.Sprintf("📥 %s (%s)", p, humanize.IBytes(uint64(len(data)))),
		Document: &Attachment{Name: path.Base(p), Data: data},
		Menu:     MenuFiles,
	})
	return Dialog{Step: StateConnected}
}

// onUpload stores a document in the working directory, or at the path given
// in the caption.
func (e *Engine) onUpload(t *turn) Dialog {
	doc := t.ev.Document
	if doc == nil || doc.Fetch == nil {
		return e.unexpected(t)
	}
	name := path.Base(strings.TrimSpace(doc.Name))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = "upload.bin"
	}
	if doc.Size > e.cfg.MaxTransferSize {
		e.reply(t, Reply{Text: fmt.Sprintf("❌ %s is larger than the %s upload limit.", name, humanize.IBytes(uint64(e.cfg.MaxTransferSize))), Menu: MenuConnected})
		return Dialog{Step: StateConnected}
	}

	dest := path.Join(t.sess.RemoteCWD, name)
	if caption := strings.TrimSpace(t.ev.Text); caption != "" {
		dest = files.Resolve(t.sess.RemoteCWD, t.sess.Home, caption)
		if strings.HasSuffix(caption, "/") {
			dest = path.Join(dest, name)
		}
	} else if t.sess.RemoteCWD == "" {
		dest = name
	}

	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	data, err := doc.Fetch(ctx)
	if err != nil {
		e.fail(t, "Could not read the document", err)
		return Dialog{Step: StateConnected}
	}
	if int64(len(data)) > e.cfg.MaxTransferSize {
		e.reply(t, Reply{Text: "❌ " + describe(remote.ErrTooLarge), Menu: MenuConnected})
		return Dialog{Step: StateConnected}
	}
	if err := t.sess.conn.Upload(ctx, data, dest); err != nil {
		return e.remoteFailure(t, "Upload to "+dest+" failed", err)
	}
	logger.Info(t.ctx, logger.ComponentSSH, "upload",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("remote_path", dest),
		slog.Int("bytes", len(data)),
	)
	e.reply(t, Reply{Text: fmt.Sprintf("📤 Uploaded %s (%s)", dest, humanize.IBytes(uint64(len(data)))), Menu: MenuConnected})
	return Dialog{Step: StateConnected}
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}

// openEdit loads p and waits for its replacement content.
func (e *Engine) openEdit(t *turn, p string) Dialog {
	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()

	info, err := t.sess.conn.Stat(ctx, p)
	if err != nil {
		return e.remoteFailure(t, "Cannot open "+p, err)
	}
	if info.IsDir() {
		e.reply(t, Reply{Text: "❌ " + p + " is a directory.", Menu: MenuFiles})
		return Dialog{Step: StateConnected}
	}
	if info.Size() > e.cfg.MaxEditSize {
		return e.editRejected(t, p, ErrFileTooLarge)
	}
	data, err := t.sess.conn.Download(ctx, p, e.cfg.MaxEditSize)
	if err != nil {
		if !errors.Is(err, remote.ErrTooLarge) {
			return e.remoteFailure(t, "Cannot open "+p, err)
		}
		return e.editRejected(t, p, ErrFileTooLarge)
	}
	if !isText(data) {
		return e.editRejected(t, p, ErrNotText)
	}

	edit := &PendingEdit{
		UserID:       t.ev.UserID,
		RemotePath:   p,
		OriginalHash: hashContent(data),
		BackupPath:   p + ".backup",
		Size:         int64(len(data)),
	}
	e.reply(t, Reply{
		Text: fmt.Sprintf("✏️ Editing %s (%s)\nSend the complete new content as a message or a document. /cancel to abort.",
			p, humanize.IBytes(uint64(len(data)))),
		Menu: MenuCancel,
	})

	content := string(data)
	if content == "" {
		content = "(empty file)"
	}
	return e.showOutput(t, content, Dialog{Step: StateAwaitingFileEditContent, Edit: edit})
}

func (e *Engine) editRejected(t *turn, p string, err error) Dialog {
	text := fmt.Sprintf("❌ Cannot edit %s: %s.", p, describe(err))
	if errors.Is(err, ErrFileTooLarge) {
		text = fmt.Sprintf("❌ Cannot edit %s: larger than %s. Download it instead.", p, humanize.IBytes(uint64(e.cfg.MaxEditSize)))
	}
	e.reply(t, Reply{Text: text, Menu: MenuFiles})
	return Dialog{Step: StateConnected}
}

func (e *Engine) onEditText(t *turn) Dialog {
	return e.saveEdit(t, []byte(t.ev.Text))
}

func (e *Engine) onEditDocument(t *turn) Dialog {
	doc := t.ev.Document
	if doc == nil || doc.Fetch == nil {
		return e.unexpected(t)
	}
	if doc.Size > e.cfg.MaxEditSize {
		return e.editRejected(t, t.dlg.Edit.RemotePath, ErrFileTooLarge)
	}
	fetchCtx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	data, err := doc.Fetch(fetchCtx)
	cancel()
	if err != nil {
		e.fail(t, "Could not read the document", err)
		return t.dlg
	}
	return e.saveEdit(t, data)
}

// saveEdit writes content after backing up the unchanged original. Nothing is
// written when the file changed since it was opened.
func (e *Engine) saveEdit(t *turn, content []byte) Dialog {
	edit := t.dlg.Edit
	if edit == nil {
		return e.unexpected(t)
	}
	if int64(len(content)) > e.cfg.MaxEditSize {
		return e.editRejected(t, edit.RemotePath, ErrFileTooLarge)
	}
	if !isText(content) {
		return e.editRejected(t, edit.RemotePath, ErrNotText)
	}

	ctx, cancel := context.WithTimeout(t.ctx, e.cfg.CommandTimeout)
	defer cancel()
	conn := t.sess.conn

	current, err := conn.Download(ctx, edit.RemotePath, e.cfg.MaxEditSize)
	if err != nil && !errors.Is(err, remote.ErrTooLarge) {
		return e.remoteFailure(t, "Save failed", err)
	}
	if err != nil || hashContent(current) != edit.OriginalHash {
		logger.Warn(t.ctx, logger.ComponentDialog, "edit_conflict",
			slog.Int64("user_id", t.ev.UserID),
			slog.String("remote_path", edit.RemotePath),
		)
		e.reply(t, Reply{Text: "❌ " + ErrEditConflict.Error() + ". Nothing was written, open the file again.", Menu: MenuFiles})
		return Dialog{Step: StateConnected}
	}
	if err := conn.Upload(ctx, current, edit.BackupPath); err != nil {
		return e.remoteFailure(t, "Backup to "+edit.BackupPath+" failed, nothing was written", err)
	}
	if err := conn.Upload(ctx, content, edit.RemotePath); err != nil {
		return e.remoteFailure(t, "Save failed, the original is in "+edit.BackupPath, err)
	}

	logger.Info(t.ctx, logger.ComponentDialog, "file_saved",
		slog.Int64("user_id", t.ev.UserID),
		slog.String("remote_path", edit.RemotePath),
		slog.Int("bytes", len(content)),
	)
	e.reply(t, Reply{
		Text: fmt.Sprintf("💾 Saved %s (%s)\nBackup: %s", edit.RemotePath, humanize.IBytes(uint64(len(content))), edit.BackupPath),
		Menu: MenuFiles,
	})
	return Dialog{Step: StateConnected}
}
