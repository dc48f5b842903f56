package dialog

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/sshbot/internal/remote/remotetest"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

const uid int64 = 1001

type recorder struct {
	mu      sync.Mutex
	replies map[int64][]Reply
	deleted []int
}

func (r *recorder) Reply(_ context.Context, userID int64, rep Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = map[int64][]Reply{}
	}
	r.replies[userID] = append(r.replies[userID], rep)
	return nil
}

func (r *recorder) Delete(_ context.Context, _ int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
	return nil
}

func (r *recorder) all(userID int64) []Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reply(nil), r.replies[userID]...)
}

func (r *recorder) deletedIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.deleted...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t      *testing.T
	cfg    Config
	deps   Deps
	eng    *Engine
	dialer *remotetest.Dialer
	store  *sessionstore.FileStore
	rec    *recorder
	clock  *clock
	steps  chan Event
}

type option func(*Config, *Deps)

func withConfig(fn func(*Config)) option {
	return func(c *Config, _ *Deps) { fn(c) }
}

func withSealer(s sessionstore.Sealer) option {
	return func(_ *Config, d *Deps) { d.Sealer = s }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	store, err := sessionstore.OpenFile(context.Background(), filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)

	h := &harness{
		t:      t,
		dialer: remotetest.NewDialer(),
		store:  store,
		rec:    &recorder{},
		clock:  &clock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)},
		steps:  make(chan Event, 1024),
	}
	h.dialer.Passwords["admin"] = "s3cret"
	h.cfg = Config{
		IdleTimeout:     30 * time.Minute,
		ConnectTimeout:  2 * time.Second,
		CommandTimeout:  2 * time.Second,
		RestoreBackoff:  time.Millisecond,
		RestoreAttempts: 3,
	}
	h.deps = Deps{
		Dialer:  h.dialer,
		Store:   store,
		Replier: h.rec,
		Now:     h.clock.Now,
		NewID:   func() string { return "sess-1" },
	}
	for _, o := range opts {
		o(&h.cfg, &h.deps)
	}
	h.start()
	return h
}

func (h *harness) start() {
	eng, err := New(h.cfg, h.deps)
	require.NoError(h.t, err)
	eng.stepped = func(ev Event) { h.steps <- ev }
	h.eng = eng
	h.t.Cleanup(func() { _ = eng.Close() })
}

// restart simulates a process restart: live connections go away, the store stays.
func (h *harness) restart() {
	require.NoError(h.t, h.eng.Close())
	h.deps.Dialogs = nil
	h.deps.Sessions = nil
	h.start()
}

func (h *harness) wait(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.steps:
		case <-time.After(5 * time.Second):
			h.t.Fatalf("timed out waiting for step %d of %d", i+1, n)
		}
	}
}

// do dispatches ev, waits for it to be handled and returns its replies.
func (h *harness) do(ev Event) []Reply {
	h.t.Helper()
	if ev.UserID == 0 {
		ev.UserID = uid
	}
	before := len(h.rec.all(ev.UserID))
	require.NoError(h.t, h.eng.Dispatch(context.Background(), ev))
	h.wait(1)
	return h.rec.all(ev.UserID)[before:]
}

func (h *harness) text(s string) []Reply {
	return h.do(Event{Kind: EventText, Text: s})
}

func (h *harness) button(a Action, payload string) []Reply {
	return h.do(Event{Kind: EventButton, Action: a, Payload: payload})
}

func (h *harness) command(a Action) []Reply {
	return h.do(Event{Kind: EventCommand, Action: a})
}

func (h *harness) connect() []Reply {
	h.t.Helper()
	h.command(ActionConnect)
	h.button(ActionAuthPassword, "")
	h.text("example.com")
	h.text("admin")
	replies := h.do(Event{Kind: EventText, Text: "s3cret", MessageID: 42})
	require.Equal(h.t, StateConnected, h.state(), "replies: %v", texts(replies))
	return replies
}

func (h *harness) state() State {
	return h.eng.State(uid)
}

func (h *harness) dialog() Dialog {
	return h.eng.dialogs.Get(uid)
}

func (h *harness) session() *Session {
	return h.eng.sessions.Get(uid)
}

func (h *harness) records() []sessionstore.Record {
	recs, err := h.store.LoadAll(context.Background())
	require.NoError(h.t, err)
	return recs
}

func texts(replies []Reply) []string {
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.Text)
	}
	return out
}

func joined(replies []Reply) string {
	return strings.Join(texts(replies), "\n")
}
