package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/m3rciful/sshbot/core/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	// maxCapture bounds how much of each output stream is kept in memory.
	maxCapture = 1 << 20
)

// Options configures an SSHDialer.
type Options struct {
	HostKeyCallback ssh.HostKeyCallback
	ConnectTimeout  time.Duration
	KeepAlive       time.Duration
	// DialContext replaces net.Dialer, mostly for tests.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// SSHDialer opens sessions with golang.org/x/crypto/ssh.
type SSHDialer struct {
	opts Options
}

// NewSSHDialer returns a dialer; a nil host key callback accepts any key.
func NewSSHDialer(opts Options) *SSHDialer {
	if opts.HostKeyCallback == nil {
		opts.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.DialContext == nil {
		var d net.Dialer
		opts.DialContext = d.DialContext
	}
	return &SSHDialer{opts: opts}
}

// Connect dials, performs the handshake and authenticates within the connect
// timeout. Cancelling ctx aborts the handshake.
func (d *SSHDialer) Connect(ctx context.Context, target Target, cred Credential) (Conn, error) {
	auth, err := authMethods(cred)
	if err != nil {
		return nil, opError("auth", ErrAuth, err)
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()

	addr := target.Addr()
	start := time.Now()
	raw, err := d.opts.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctxError("connect", ctx)
		}
		return nil, opError("connect", ErrNetwork, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })

	cfg := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            auth,
		HostKeyCallback: d.opts.HostKeyCallback,
		Timeout:         d.opts.ConnectTimeout,
	}
	sc, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if !stop() {
		if err == nil {
			_ = sc.Close()
		}
		return nil, ctxError("connect", ctx)
	}
	if err != nil {
		_ = raw.Close()
		if ctx.Err() != nil {
			return nil, ctxError("connect", ctx)
		}
		return nil, classifyHandshake(err)
	}
	_ = raw.SetDeadline(time.Time{})

	c := newSSHConn(ssh.NewClient(sc, chans, reqs), d.opts.KeepAlive)
	logger.Debug(ctx, logger.ComponentSSH, "ssh.connect",
		slog.String("host", target.Host),
		slog.Int("port", target.Port),
		slog.String("ssh_user", target.Username),
		slog.String("auth_method", string(cred.Method)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return c, nil
}

func classifyHandshake(err error) error {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	var netErr net.Error
	msg := err.Error()
	switch {
	case errors.As(err, &keyErr), errors.As(err, &revoked):
		return opError("connect", ErrHostKey, err)
	case strings.Contains(msg, "unable to authenticate"):
		return opError("connect", ErrAuth, err)
	case errors.As(err, &netErr) && netErr.Timeout(), strings.Contains(msg, "i/o timeout"):
		return opError("connect", ErrTimeout, err)
	default:
		return opError("connect", ErrNetwork, err)
	}
}

type sshConn struct {
	client *ssh.Client

	mu   sync.Mutex
	sftp *sftp.Client

	stop      chan struct{}
	closeOnce sync.Once
}

func newSSHConn(client *ssh.Client, keepAlive time.Duration) *sshConn {
	c := &sshConn{client: client, stop: make(chan struct{})}
	if keepAlive > 0 {
		go c.keepAlive(keepAlive)
	}
	return c
}

func (c *sshConn) keepAlive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				logger.Warn(context.Background(), logger.ComponentSSH, "ssh.keepalive",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
				_ = c.Close()
				return
			}
		}
	}
}

// Execute runs cmd on a fresh session channel and waits for it, or kills it
// when ctx ends.
func (c *sshConn) Execute(ctx context.Context, cmd Command) (Result, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return Result{}, opError("exec", ErrNetwork, err)
	}
	defer sess.Close()

	stdout := &capBuffer{max: maxCapture}
	stderr := &capBuffer{max: maxCapture}
	sess.Stdout = stdout
	sess.Stderr = stderr
	if err := sess.Start(cmd.Shell()); err != nil {
		return Result{}, opError("exec", ErrNetwork, err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return Result{}, ctxError("exec", ctx)
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		var missing *ssh.ExitMissingError
		if errors.As(err, &missing) {
			res.ExitCode = -1
			return res, nil
		}
		return res, opError("exec", ErrNetwork, err)
	}
}

func (c *sshConn) sftpClient() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp != nil {
		return c.sftp, nil
	}
	sc, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, opError("sftp", ErrNetwork, err)
	}
	c.sftp = sc
	return sc, nil
}

// withSFTP runs fn off the caller's goroutine so ctx can abandon it.
func (c *sshConn) withSFTP(ctx context.Context, op string, fn func(*sftp.Client) error) error {
	sc, err := c.sftpClient()
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn(sc) }()
	select {
	case <-ctx.Done():
		return ctxError(op, ctx)
	case err := <-done:
		return classifyFileError(op, err)
	}
}

func classifyFileError(op string, err error) error {
	var re *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &re):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return opError(op, ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return opError(op, ErrPermission, err)
	case errors.Is(err, sftp.ErrSSHFxConnectionLost), errors.Is(err, io.EOF):
		return opError(op, ErrNetwork, err)
	default:
		var status *sftp.StatusError
		if errors.As(err, &status) {
			return opError(op, ErrRemote, err)
		}
		return opError(op, ErrNetwork, err)
	}
}

func (c *sshConn) Upload(ctx context.Context, data []byte, remotePath string) error {
	return c.withSFTP(ctx, "upload", func(sc *sftp.Client) error {
		f, err := sc.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

func (c *sshConn) Download(ctx context.Context, remotePath string, limit int64) ([]byte, error) {
	var out []byte
	err := c.withSFTP(ctx, "download", func(sc *sftp.Client) error {
		info, err := sc.Stat(remotePath)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return opError("download", ErrNotFound, errors.New(remotePath+" is a directory"))
		}
		if limit > 0 && info.Size() > limit {
			return opError("download", ErrTooLarge, nil)
		}
		f, err := sc.Open(remotePath)
		if err != nil {
			return err
		}
		defer f.Close()
		r := io.Reader(f)
		if limit > 0 {
			r = io.LimitReader(f, limit+1)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		if limit > 0 && int64(len(data)) > limit {
			return opError("download", ErrTooLarge, nil)
		}
		out = data
		return nil
	})
	return out, err
}

func (c *sshConn) Stat(ctx context.Context, remotePath string) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := c.withSFTP(ctx, "stat", func(sc *sftp.Client) error {
		var err error
		info, err = sc.Stat(remotePath)
		return err
	})
	return info, err
}

func (c *sshConn) ReadDir(ctx context.Context, remotePath string) ([]fs.FileInfo, error) {
	var entries []fs.FileInfo
	err := c.withSFTP(ctx, "readdir", func(sc *sftp.Client) error {
		var err error
		entries, err = sc.ReadDir(remotePath)
		return err
	})
	return entries, err
}

func (c *sshConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.sftp != nil {
			_ = c.sftp.Close()
		}
		c.mu.Unlock()
		err = c.client.Close()
	})
	return err
}

// capBuffer keeps the first max bytes written and silently drops the rest.
type capBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *capBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
