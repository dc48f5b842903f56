// Package remotetest provides an in-memory remote.Dialer for tests.
package remotetest

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/sshbot/internal/remote"
)

// ExecFunc answers commands the fake shell does not interpret itself.
type ExecFunc func(ctx context.Context, cmd remote.Command) (remote.Result, error)

// Dialer accepts users listed in Passwords (or Keys) and serves an in-memory
// file tree shared by every connection it opens.
type Dialer struct {
	mu sync.Mutex

	Passwords map[string]string
	Keys      map[string]string
	// ConnectErr, when set, fails every Connect.
	ConnectErr error
	// ConnectGate, when set, holds Connect until it is closed or ctx ends.
	ConnectGate chan struct{}
	Exec        ExecFunc

	files map[string][]byte
	dirs  map[string]bool
	conns []*Conn
	seen  [][]byte
}

// NewDialer returns a dialer with an empty file tree.
func NewDialer() *Dialer {
	return &Dialer{
		Passwords: map[string]string{},
		Keys:      map[string]string{},
		files:     map[string][]byte{},
		dirs:      map[string]bool{"/": true},
	}
}

// Home is the login directory of user.
func Home(user string) string {
	return "/home/" + user
}

// Connect authenticates against Passwords or Keys.
func (d *Dialer) Connect(ctx context.Context, target remote.Target, cred remote.Credential) (remote.Conn, error) {
	d.mu.Lock()
	gate := d.ConnectGate
	d.seen = append(d.seen, cred.Secret)
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &remote.Error{Op: "connect", Kind: remote.ErrTimeout, Err: ctx.Err()}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	var ok bool
	switch cred.Method {
	case remote.AuthPassword:
		want, found := d.Passwords[target.Username]
		ok = found && want == string(cred.Secret)
	case remote.AuthKey:
		want, found := d.Keys[target.Username]
		ok = found && want == string(cred.Secret)
	}
	if !ok {
		return nil, &remote.Error{Op: "connect", Kind: remote.ErrAuth}
	}
	home := Home(target.Username)
	d.mkdirAllLocked(home)
	c := &Conn{d: d, Target: target, home: home}
	d.conns = append(d.conns, c)
	return c, nil
}

// SeenSecrets returns the secret buffers handed to Connect, in order. They
// alias the caller's memory, so a wiped credential shows up zeroed here.
func (d *Dialer) SeenSecrets() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.seen...)
}

// Conns lists every connection opened so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// WriteFile seeds a file, creating parent directories.
func (d *Dialer) WriteFile(p string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p = path.Clean(p)
	d.mkdirAllLocked(path.Dir(p))
	d.files[p] = append([]byte(nil), data...)
}

// ReadFile returns a copy of a file's content.
func (d *Dialer) ReadFile(p string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[path.Clean(p)]
	return append([]byte(nil), data...), ok
}

// Mkdir creates a directory and its parents.
func (d *Dialer) Mkdir(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mkdirAllLocked(path.Clean(p))
}

func (d *Dialer) mkdirAllLocked(p string) {
	for p != "/" && p != "." {
		d.dirs[p] = true
		p = path.Dir(p)
	}
}

// Conn is a fake session with a tiny shell: pwd, cd, mkdir -p and touch are
// interpreted, everything else goes to Dialer.Exec.
type Conn struct {
	d      *Dialer
	Target remote.Target
	home   string

	mu       sync.Mutex
	closed   bool
	commands []remote.Command
}

// Commands returns the commands executed on this connection.
func (c *Conn) Commands() []remote.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]remote.Command(nil), c.commands...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) check(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &remote.Error{Op: op, Kind: remote.ErrNetwork}
	}
	return nil
}

func (c *Conn) Execute(ctx context.Context, cmd remote.Command) (remote.Result, error) {
	if err := c.check("exec"); err != nil {
		return remote.Result{}, err
	}
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	c.mu.Unlock()

	dir := cmd.Dir
	if dir == "" {
		dir = c.home
	}
	line := strings.TrimSpace(cmd.Line)
	switch {
	case line == "pwd":
		return remote.Result{Stdout: dir + "\n"}, nil
	case line == "cd && pwd":
		return remote.Result{Stdout: c.home + "\n"}, nil
	case strings.HasPrefix(line, "cd ") && strings.HasSuffix(line, " && pwd"):
		arg := unquote(strings.TrimSuffix(strings.TrimPrefix(line, "cd "), " && pwd"))
		target := c.resolve(dir, arg)
		c.d.mu.Lock()
		ok := c.d.dirs[target]
		c.d.mu.Unlock()
		if !ok {
			return remote.Result{Stderr: "cd: " + arg + ": No such file or directory\n", ExitCode: 1}, nil
		}
		return remote.Result{Stdout: target + "\n"}, nil
	case strings.HasPrefix(line, "mkdir -p -- "):
		c.d.Mkdir(c.resolve(dir, unquote(strings.TrimPrefix(line, "mkdir -p -- "))))
		return remote.Result{}, nil
	case strings.HasPrefix(line, "touch -- "):
		p := c.resolve(dir, unquote(strings.TrimPrefix(line, "touch -- ")))
		if _, ok := c.d.ReadFile(p); !ok {
			c.d.WriteFile(p, nil)
		}
		return remote.Result{}, nil
	}
	if c.d.Exec != nil {
		return c.d.Exec(ctx, cmd)
	}
	return remote.Result{}, nil
}

func (c *Conn) resolve(dir, arg string) string {
	switch {
	case arg == "" || arg == "~":
		return c.home
	case strings.HasPrefix(arg, "~/"):
		return path.Join(c.home, arg[2:])
	case path.IsAbs(arg):
		return path.Clean(arg)
	default:
		return path.Join(dir, arg)
	}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], `'\''`, `'`)
	}
	return s
}

func (c *Conn) Upload(_ context.Context, data []byte, remotePath string) error {
	if err := c.check("upload"); err != nil {
		return err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	p := path.Clean(remotePath)
	if !c.d.dirs[path.Dir(p)] {
		return &remote.Error{Op: "upload", Kind: remote.ErrNotFound}
	}
	c.d.files[p] = append([]byte(nil), data...)
	return nil
}

func (c *Conn) Download(_ context.Context, remotePath string, limit int64) ([]byte, error) {
	if err := c.check("download"); err != nil {
		return nil, err
	}
	data, ok := c.d.ReadFile(remotePath)
	if !ok {
		return nil, &remote.Error{Op: "download", Kind: remote.ErrNotFound}
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &remote.Error{Op: "download", Kind: remote.ErrTooLarge}
	}
	return data, nil
}

func (c *Conn) Stat(_ context.Context, remotePath string) (fs.FileInfo, error) {
	if err := c.check("stat"); err != nil {
		return nil, err
	}
	p := path.Clean(remotePath)
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if data, ok := c.d.files[p]; ok {
		return fileInfo{name: path.Base(p), size: int64(len(data))}, nil
	}
	if c.d.dirs[p] {
		return fileInfo{name: path.Base(p), dir: true}, nil
	}
	return nil, &remote.Error{Op: "stat", Kind: remote.ErrNotFound}
}

func (c *Conn) ReadDir(_ context.Context, remotePath string) ([]fs.FileInfo, error) {
	if err := c.check("readdir"); err != nil {
		return nil, err
	}
	p := path.Clean(remotePath)
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if !c.d.dirs[p] {
		return nil, &remote.Error{Op: "readdir", Kind: remote.ErrNotFound}
	}
	var out []fs.FileInfo
	for f, data := range c.d.files {
		if path.Dir(f) == p {
			out = append(out, fileInfo{name: path.Base(f), size: int64(len(data))})
		}
	}
	for dir := range c.d.dirs {
		if dir != p && path.Dir(dir) == p {
			out = append(out, fileInfo{name: path.Base(dir), dir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fileInfo struct {
	name string
	size int64
	dir  bool
}

func (f fileInfo) Name() string { return f.name }
func (f fileInfo) Size() int64  { return f.size }
func (f fileInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (f fileInfo) ModTime() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
func (f fileInfo) IsDir() bool        { return f.dir }
func (f fileInfo) Sys() any           { return nil }
