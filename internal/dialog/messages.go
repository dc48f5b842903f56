package dialog

import (
	"errors"

	"github.com/m3rciful/sshbot/internal/remote"
)

const (
	msgWelcome = "👋 SSH bot\n\n" +
		"Connect to a server and run commands, browse and edit files or check system status.\n" +
		"Use /connect to start."
	msgHelp = "Commands:\n" +
		"/connect - open an SSH session\n" +
		"/disconnect - close the session\n" +
		"/status - show the current session\n" +
		"/menu - show the main menu\n" +
		"/cancel - abort the current prompt\n\n" +
		"While connected, any text message runs as a shell command in the current directory. " +
		"\"cd <dir>\" changes the directory. Send a document to upload it."
	msgNotConnected    = "🔌 Not connected. Use /connect to open an SSH session."
	msgUnexpected      = "🤔 Unexpected input."
	msgChooseMethod    = "🔐 Choose the authentication method:"
	msgEnterHost       = "🌐 Enter the host as host or host:port (default port %d):"
	msgEnterUsername   = "👤 Enter the username:"
	msgEnterPassword   = "🔑 Enter the password. The message will be deleted right away."
	msgEnterKey        = "🔑 Send the private key as a file or paste it (PEM)."
	msgNothingToCancel = "Nothing to cancel."
	msgCancelled       = "✖️ Cancelled."
)

func hintFor(d Dialog) string {
	switch d.Step {
	case StateAwaitingAuthMethod:
		return " Choose password or key."
	case StateAwaitingHost:
		return " Enter the host."
	case StateAwaitingUsername:
		return " Enter the username."
	case StateAwaitingSecret:
		if d.AuthMethod == remote.AuthKey {
			return " Send the private key."
		}
		return " Enter the password."
	case StateAwaitingPath:
		return " Enter a path or /cancel."
	case StateAwaitingFileEditContent:
		return " Send the new content or /cancel."
	case StateConnected:
		return " Send a shell command or use the menu."
	default:
		return " Use /connect to start."
	}
}

// describe turns an error into a short user-facing reason.
func describe(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "unknown error"
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, remote.ErrAuth):
		return "authentication failed"
	case errors.Is(err, remote.ErrHostKey):
		return "host key verification failed"
	case errors.Is(err, remote.ErrTimeout):
		return "timed out"
	case errors.Is(err, remote.ErrNotFound):
		return "no such file or directory"
	case errors.Is(err, remote.ErrPermission):
		return "permission denied"
	case errors.Is(err, remote.ErrTooLarge), errors.Is(err, ErrFileTooLarge):
		return "file too large"
	case errors.Is(err, ErrNotText):
		return "not a text file"
	case errors.Is(err, ErrEditConflict):
		return ErrEditConflict.Error()
	case errors.Is(err, remote.ErrNetwork):
		return "network error"
	default:
		return err.Error()
	}
}
