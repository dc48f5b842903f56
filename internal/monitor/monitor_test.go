package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/sshbot/internal/remote"
)

type execFunc func(ctx context.Context, cmd remote.Command) (remote.Result, error)

func (f execFunc) Execute(ctx context.Context, cmd remote.Command) (remote.Result, error) {
	return f(ctx, cmd)
}

func TestRunSystemReport(t *testing.T) {
	var mu sync.Mutex
	var dirs []string
	exec := execFunc(func(_ context.Context, cmd remote.Command) (remote.Result, error) {
		mu.Lock()
		dirs = append(dirs, cmd.Dir)
		mu.Unlock()
		switch cmd.Line {
		case "hostname":
			return remote.Result{Stdout: "web-1\n"}, nil
		case "uname -r":
			return remote.Result{Stderr: "boom", ExitCode: 1}, nil
		}
		return remote.Result{Stdout: "x"}, nil
	})

	out, err := Run(context.Background(), exec, "system", "/root", 2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "🖥 System information"))
	assert.Contains(t, out, "Hostname: web-1\n")
	assert.Contains(t, out, "Kernel: N/A\n")
	assert.Len(t, dirs, 5)
	for _, d := range dirs {
		assert.Equal(t, "/root", d)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	var cur, peak int32
	exec := execFunc(func(context.Context, remote.Command) (remote.Result, error) {
		n := atomic.AddInt32(&cur, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&cur, -1)
		return remote.Result{Stdout: "ok"}, nil
	})

	_, err := Run(context.Background(), exec, "system", "/", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunTransportFailureAborts(t *testing.T) {
	exec := execFunc(func(context.Context, remote.Command) (remote.Result, error) {
		return remote.Result{}, &remote.Error{Op: "exec", Kind: remote.ErrNetwork, Err: errors.New("eof")}
	})
	_, err := Run(context.Background(), exec, "resources", "/", 4)
	assert.ErrorIs(t, err, remote.ErrNetwork)
}

func TestRunBlockReportOmitsMissingExtras(t *testing.T) {
	exec := execFunc(func(_ context.Context, cmd remote.Command) (remote.Result, error) {
		if strings.HasPrefix(cmd.Line, "curl") {
			return remote.Result{ExitCode: 7}, nil
		}
		return remote.Result{Stdout: "eth0 UP 10.0.0.2/24\n"}, nil
	})
	out, err := Run(context.Background(), exec, "network", "/", 2)
	require.NoError(t, err)
	assert.Contains(t, out, "eth0 UP 10.0.0.2/24")
	assert.NotContains(t, out, "Public IP")
}

func TestUnknownReport(t *testing.T) {
	_, err := Run(context.Background(), nil, "nope", "/", 1)
	assert.ErrorIs(t, err, ErrUnknownReport)
}

func TestCatalogues(t *testing.T) {
	names := map[string]bool{}
	for _, r := range Reports() {
		assert.NotEmpty(t, r.Queries, r.Name)
		names[r.Name] = true
	}
	for _, want := range []string{"system", "resources", "processes", "disk", "network", "ports"} {
		assert.True(t, names[want], want)
	}

	q, ok := Quick("journal")
	require.True(t, ok)
	assert.Equal(t, "journalctl -n 50 --no-pager", q.Line)
	_, ok = Quick("rm")
	assert.False(t, ok)
	assert.Len(t, QuickCommands(), 10)
}
