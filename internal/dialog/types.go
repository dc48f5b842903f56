// Package dialog is the per-user conversation state machine: it turns bot
// events into SSH operations and replies, one user at a time.
package dialog

import (
	"context"
	"time"

	"github.com/m3rciful/sshbot/internal/paginate"
	"github.com/m3rciful/sshbot/internal/remote"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

// State is a step of the conversation.
type State string

const (
	StateIdle                    State = "idle"
	StateAwaitingAuthMethod      State = "awaiting_auth_method"
	StateAwaitingHost            State = "awaiting_host"
	StateAwaitingUsername        State = "awaiting_username"
	StateAwaitingSecret          State = "awaiting_secret"
	StateConnected               State = "connected"
	StateAwaitingPath            State = "awaiting_path"
	StateAwaitingFileEditContent State = "awaiting_file_edit_content"
)

// States lists every state.
var States = []State{
	StateIdle,
	StateAwaitingAuthMethod,
	StateAwaitingHost,
	StateAwaitingUsername,
	StateAwaitingSecret,
	StateConnected,
	StateAwaitingPath,
	StateAwaitingFileEditContent,
}

// Purpose says what an awaiting_path prompt is collecting.
type Purpose string

const (
	PurposeNone     Purpose = ""
	PurposeEdit     Purpose = "edit"
	PurposeDownload Purpose = "download"
	PurposeMkdir    Purpose = "mkdir"
	PurposeTouch    Purpose = "touch"
	PurposeSearch   Purpose = "search"
	PurposeCD       Purpose = "cd"
)

// EventKind tags an Event.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventButton
	EventCommand
	EventDocument

	eventIdleCheck
	eventRestore
)

// PublicKinds are the kinds the bot transport produces.
var PublicKinds = []EventKind{EventText, EventButton, EventCommand, EventDocument}

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventButton:
		return "button"
	case EventCommand:
		return "command"
	case EventDocument:
		return "document"
	case eventIdleCheck:
		return "idle_check"
	case eventRestore:
		return "restore"
	default:
		return "unknown"
	}
}

// Action names a button or slash command.
type Action string

const (
	ActionStart        Action = "start"
	ActionHelp         Action = "help"
	ActionMenu         Action = "menu.main"
	ActionConnect      Action = "conn.new"
	ActionAuthPassword Action = "conn.password"
	ActionAuthKey      Action = "conn.key"
	ActionDisconnect   Action = "disconnect"
	ActionStatus       Action = "status"
	ActionCancel       Action = "cancel"

	ActionFiles    Action = "files"
	ActionBrowse   Action = "files.ls"
	ActionPwd      Action = "files.pwd"
	ActionHome     Action = "files.home"
	ActionUpload   Action = "files.upload"
	ActionDownload Action = "files.download"
	ActionEdit     Action = "files.edit"
	ActionMkdir    Action = "files.mkdir"
	ActionTouch    Action = "files.touch"
	ActionSearch   Action = "files.search"
	ActionCD       Action = "files.cd"
	ActionDisk     Action = "files.du"

	ActionMonitor    Action = "monitor"
	ActionMonitorRun Action = "monitor.run"
	ActionQuick      Action = "quick"
	ActionQuickRun   Action = "quick.run"

	ActionPage Action = "page"
)

// InboundFile is a document sent by the user. Fetch downloads its bytes and
// is only called from the user's worker.
type InboundFile struct {
	Name  string
	Size  int64
	Fetch func(ctx context.Context) ([]byte, error)
}

// Event is one input for a user's state machine.
type Event struct {
	Kind      EventKind
	UserID    int64
	MessageID int
	// Text is the message text, or the caption of a document.
	Text     string
	Action   Action
	Payload  string
	Document *InboundFile

	ctx    context.Context
	gen    uint64
	record *sessionstore.Record
}

// PendingEdit is a file opened for editing.
type PendingEdit struct {
	UserID       int64
	RemotePath   string
	OriginalHash string
	BackupPath   string
	Size         int64
}

// OutputView is the paginated output of the last command.
type OutputView struct {
	Pages []string
	Index int
}

// View reports the current position.
func (o *OutputView) View() paginate.View {
	return paginate.View{Index: o.Index, Total: len(o.Pages)}
}

// Dialog is a user's conversation state. It is replaced wholesale on every
// transition.
type Dialog struct {
	UserID     int64
	Step       State
	AuthMethod remote.AuthMethod
	Host       string
	Port       int
	Username   string
	Purpose    Purpose
	Edit       *PendingEdit
	Output     *OutputView
	Err        error
	UpdatedAt  time.Time
}

// Session is a live SSH connection owned by one user.
type Session struct {
	ID           string
	UserID       int64
	Host         string
	Port         int
	Username     string
	AuthMethod   remote.AuthMethod
	RemoteCWD    string
	Home         string
	ConnectedAt  time.Time
	LastActivity time.Time

	conn   remote.Conn
	sealed []byte
}

// Target returns the address the session is connected to.
func (s *Session) Target() remote.Target {
	return remote.Target{Host: s.Host, Port: s.Port, Username: s.Username}
}

func (s *Session) record(now time.Time) sessionstore.Record {
	return sessionstore.Record{
		UserID:           s.UserID,
		SessionID:        s.ID,
		Host:             s.Host,
		Port:             s.Port,
		Username:         s.Username,
		AuthMethod:       string(s.AuthMethod),
		SealedCredential: s.sealed,
		RemoteCWD:        s.RemoteCWD,
		ConnectedAt:      s.ConnectedAt,
		LastActivity:     s.LastActivity,
		SavedAt:          now,
	}
}
