// Package remote runs commands and moves files on a user's SSH host.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
)

// Error kinds. Every error returned by a Dialer or Conn wraps one of them.
var (
	ErrAuth       = errors.New("authentication failed")
	ErrHostKey    = errors.New("host key verification failed")
	ErrNetwork    = errors.New("network error")
	ErrTimeout    = errors.New("operation timed out")
	ErrCanceled   = errors.New("operation canceled")
	ErrNotFound   = errors.New("no such file or directory")
	ErrPermission = errors.New("permission denied")
	ErrTooLarge   = errors.New("file too large")
	ErrRemote     = errors.New("remote operation failed")
)

// Error describes a failed remote operation.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ssh %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("ssh %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code reports a stable identifier for handler summaries.
func (e *Error) Code() string {
	switch e.Kind {
	case ErrAuth:
		return "SSH_AUTH"
	case ErrHostKey:
		return "SSH_HOST_KEY"
	case ErrTimeout:
		return "SSH_TIMEOUT"
	case ErrCanceled:
		return "SSH_CANCELED"
	case ErrNotFound:
		return "SSH_NOT_FOUND"
	case ErrPermission:
		return "SSH_PERMISSION"
	case ErrTooLarge:
		return "SSH_TOO_LARGE"
	case ErrRemote:
		return "SSH_REMOTE"
	default:
		return "SSH_NETWORK"
	}
}

// Transport reports whether err means the connection itself is unusable.
func Transport(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func opError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func ctxError(op string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return opError(op, ErrTimeout, ctx.Err())
	}
	return opError(op, ErrCanceled, ctx.Err())
}

// Target identifies the account to log into.
type Target struct {
	Host     string
	Port     int
	Username string
}

// Addr joins host and port, bracketing IPv6 literals.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return t.Addr()
}

// Command is a shell line run from Dir (the login directory when empty).
type Command struct {
	Dir  string
	Line string
}

// Shell renders the line sent over the exec channel.
func (c Command) Shell() string {
	if c.Dir == "" {
		return c.Line
	}
	return "cd " + Quote(c.Dir) + " && " + c.Line
}

// Result carries the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Conn is an authenticated session handle. Execute may be called from several
// goroutines at once, each call running on its own channel; Upload, Download,
// Stat and ReadDir share one SFTP client and may also run concurrently. Close
// interrupts every call in flight.
type Conn interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
	Upload(ctx context.Context, data []byte, remotePath string) error
	// Download reads the whole file; limit > 0 rejects larger files with ErrTooLarge.
	Download(ctx context.Context, remotePath string, limit int64) ([]byte, error)
	Stat(ctx context.Context, remotePath string) (fs.FileInfo, error)
	ReadDir(ctx context.Context, remotePath string) ([]fs.FileInfo, error)
	Close() error
}

// Dialer opens authenticated sessions.
type Dialer interface {
	Connect(ctx context.Context, target Target, cred Credential) (Conn, error)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
