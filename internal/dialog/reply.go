package dialog

import (
	"context"

	"github.com/m3rciful/sshbot/internal/paginate"
)

// Menu selects the keyboard attached to a reply.
type Menu string

const (
	MenuNone       Menu = ""
	MenuMain       Menu = "main"
	MenuAuthMethod Menu = "auth"
	MenuConnected  Menu = "connected"
	MenuFiles      Menu = "files"
	MenuMonitor    Menu = "monitor"
	MenuQuick      Menu = "quick"
	MenuCancel     Menu = "cancel"
)

// Attachment is a file sent back to the user.
type Attachment struct {
	Name string
	Data []byte
}

// Reply is one outgoing message.
type Reply struct {
	Text string
	// Mono renders Text as preformatted output.
	Mono bool
	Menu Menu
	// Page adds previous/next buttons for paginated output.
	Page *paginate.View
	// EditMessageID, when set, replaces that message instead of sending a new one.
	EditMessageID int
	Document      *Attachment
}

// Replier delivers replies to the chat transport.
type Replier interface {
	Reply(ctx context.Context, userID int64, r Reply) error
	Delete(ctx context.Context, userID int64, messageID int) error
}
