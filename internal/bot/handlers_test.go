package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tg "github.com/m3rciful/sshbot/core/telegram"
	"github.com/m3rciful/sshbot/core/telegram/callbacks"
	"github.com/m3rciful/sshbot/internal/dialog"
	"github.com/m3rciful/sshbot/internal/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeEngine struct {
	mu      sync.Mutex
	events  []dialog.Event
	state   dialog.State
	err     error
	pending bool
}

func (f *fakeEngine) Dispatch(_ context.Context, ev dialog.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeEngine) State(int64) dialog.State {
	if f.state == "" {
		return dialog.StateIdle
	}
	return f.state
}

func (f *fakeEngine) Pending(int64) bool { return f.pending }

type fakeFiles struct {
	data string
	err  error
}

func (f fakeFiles) File(*tele.File) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.data)), nil
}

// testBot returns an offline bot whose API calls land on a local server.
func testBot(t *testing.T) (*tele.Bot, *[]string) {
	t.Helper()
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":7,"type":"private"}}}`)
	}))
	t.Cleanup(srv.Close)
	b, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "test", Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b, &methods
}

func message(id int, userID int64, text string) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			ID:     id,
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	}
}

func registered(t *testing.T, h *Handlers) *tg.Registry {
	t.Helper()
	reg := tg.NewRegistry()
	require.NoError(t, h.Register(reg))
	return reg
}

func TestRegisterCoversCommandsAndButtons(t *testing.T) {
	reg := registered(t, New(Options{Engine: &fakeEngine{}}))
	for _, spec := range commandSpecs {
		_, _, ok := reg.LookupCommand(spec.name)
		assert.True(t, ok, spec.name)
	}
	_, cmd, ok := reg.LookupCommand("/sessions")
	require.True(t, ok)
	assert.True(t, cmd.AdminOnly)
	for _, a := range buttonActions {
		_, ok := reg.GetCallback(string(a))
		assert.True(t, ok, a)
	}
}

func TestCommandBuildsEvent(t *testing.T) {
	b, _ := testBot(t)
	eng := &fakeEngine{}
	reg := registered(t, New(Options{Engine: eng}))

	upd := message(10, 7, "/connect root@host:2222")
	upd.Message.Payload = "root@host:2222"
	_, cmd, ok := reg.LookupCommand("/connect")
	require.True(t, ok)
	require.NoError(t, cmd.Handler(b.NewContext(upd)))

	require.Len(t, eng.events, 1)
	ev := eng.events[0]
	assert.Equal(t, dialog.EventCommand, ev.Kind)
	assert.Equal(t, dialog.ActionConnect, ev.Action)
	assert.Equal(t, "root@host:2222", ev.Payload)
	assert.Equal(t, int64(7), ev.UserID)
	assert.Equal(t, 10, ev.MessageID)
}

func TestButtonBuildsEvent(t *testing.T) {
	b, _ := testBot(t)
	eng := &fakeEngine{}
	reg := registered(t, New(Options{Engine: eng}))

	upd := tele.Update{
		ID: 3,
		Callback: &tele.Callback{
			ID:     "cb",
			Sender: &tele.User{ID: 7},
			Data:   callbacks.Encode(string(dialog.ActionPage), "2"),
			Message: &tele.Message{
				ID:   55,
				Chat: &tele.Chat{ID: 7, Type: tele.ChatPrivate},
				Text: "old output",
			},
		},
	}
	h, ok := reg.GetCallback(string(dialog.ActionPage))
	require.True(t, ok)
	require.NoError(t, h(b.NewContext(upd)))

	require.Len(t, eng.events, 1)
	ev := eng.events[0]
	assert.Equal(t, dialog.EventButton, ev.Kind)
	assert.Equal(t, dialog.ActionPage, ev.Action)
	assert.Equal(t, "2", ev.Payload)
	assert.Equal(t, 55, ev.MessageID)
	assert.Empty(t, ev.Text)
}

func TestHandleMessageText(t *testing.T) {
	b, _ := testBot(t)
	eng := &fakeEngine{state: dialog.StateAwaitingHost}
	h := New(Options{Engine: eng})

	assert.True(t, h.InProgress(7))
	require.NoError(t, h.HandleMessage(b.NewContext(message(4, 7, "example.org"))))
	require.Len(t, eng.events, 1)
	assert.Equal(t, dialog.EventText, eng.events[0].Kind)
	assert.Equal(t, "example.org", eng.events[0].Text)
}

func TestHandleMessageDocument(t *testing.T) {
	b, _ := testBot(t)
	eng := &fakeEngine{state: dialog.StateConnected}
	h := New(Options{Engine: eng, Files: fakeFiles{data: "payload"}})

	upd := message(5, 7, "")
	upd.Message.Caption = "/tmp"
	upd.Message.Document = &tele.Document{
		File:     tele.File{FileID: "f1", FileSize: 7},
		FileName: "a.txt",
	}
	require.NoError(t, h.UnknownDocument()(b.NewContext(upd)))

	require.Len(t, eng.events, 1)
	ev := eng.events[0]
	assert.Equal(t, dialog.EventDocument, ev.Kind)
	assert.Equal(t, "/tmp", ev.Text)
	require.NotNil(t, ev.Document)
	assert.Equal(t, "a.txt", ev.Document.Name)
	assert.Equal(t, int64(7), ev.Document.Size)
	data, err := ev.Document.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDocumentFetchErrors(t *testing.T) {
	h := New(Options{Engine: &fakeEngine{}, Files: fakeFiles{err: errors.New("gone")}})
	_, err := h.fetcher(&tele.File{FileID: "x"})(context.Background())
	assert.ErrorContains(t, err, "gone")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.fetcher(&tele.File{FileID: "x"})(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(Options{Engine: &fakeEngine{}}).fetcher(&tele.File{})(context.Background())
	assert.Error(t, err)
}

func TestBusyEngineTellsUser(t *testing.T) {
	b, methods := testBot(t)
	eng := &fakeEngine{state: dialog.StateConnected, err: dialog.ErrBusy}
	h := New(Options{Engine: eng})

	require.NoError(t, h.UnknownText()(b.NewContext(message(6, 7, "uptime"))))
	assert.Equal(t, []string{"sendMessage"}, *methods)
}

func TestInProgressAndRedact(t *testing.T) {
	eng := &fakeEngine{}
	h := New(Options{Engine: eng})

	cases := []struct {
		state      dialog.State
		inProgress bool
		redact     bool
	}{
		{dialog.StateIdle, false, false},
		{dialog.StateConnected, false, false},
		{dialog.StateAwaitingAuthMethod, true, true},
		{dialog.StateAwaitingHost, true, true},
		{dialog.StateAwaitingUsername, true, true},
		{dialog.StateAwaitingSecret, true, true},
		{dialog.StateAwaitingPath, true, false},
		{dialog.StateAwaitingFileEditContent, true, false},
	}
	for _, tc := range cases {
		eng.state = tc.state
		assert.Equal(t, tc.inProgress, h.InProgress(7), tc.state)
		assert.Equal(t, tc.redact, h.Redact(7), tc.state)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	b, methods := testBot(t)
	var called bool
	h := New(Options{Engine: &fakeEngine{}, Sessions: func(context.Context) ([]sessionstore.Record, error) {
		called = true
		return nil, nil
	}})
	require.NoError(t, h.listSessions(b.NewContext(message(8, 1, "/sessions"))))
	assert.True(t, called)
	assert.Equal(t, []string{"sendMessage"}, *methods)
}

func TestRedactWhileEventsArePending(t *testing.T) {
	eng := &fakeEngine{state: dialog.StateConnected}
	h := New(Options{Engine: eng})
	assert.False(t, h.Redact(7))

	eng.pending = true
	assert.True(t, h.Redact(7))

	eng.state = dialog.StateIdle
	assert.True(t, h.Redact(7))
}
