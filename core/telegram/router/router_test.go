package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/sshbot/core/telegram"
	"github.com/m3rciful/sshbot/core/telegram/callbacks"
)

func localBot(t *testing.T) *tele.Bot {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	t.Cleanup(srv.Close)
	b, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "test", Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b
}

func text(userID int64, s string) tele.Update {
	return tele.Update{Message: &tele.Message{
		ID:     1,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Text:   s,
	}}
}

type conversation struct {
	active  bool
	handled []string
}

func (c *conversation) InProgress(int64) bool { return c.active }

func (c *conversation) HandleMessage(ctx tele.Context) error {
	c.handled = append(c.handled, ctx.Text())
	return nil
}

func route(t *testing.T, routes []tg.Route, endpoint any) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	t.Fatalf("no route for %v", endpoint)
	return nil
}

func TestTextRoutesPrecedence(t *testing.T) {
	b := localBot(t)
	reg := tg.NewRegistry()
	var statusCalls, adminCalls int
	reg.RegisterCommand("/status", tg.Command{Description: "status", Handler: func(tele.Context) error {
		statusCalls++
		return nil
	}})
	reg.RegisterCommand("/sessions", tg.Command{Description: "sessions", AdminOnly: true, Handler: func(tele.Context) error {
		adminCalls++
		return nil
	}})

	conv := &conversation{}
	var unknown []string
	h := route(t, TextRoutes(conv, reg, TextOptions{UnknownText: func(c tele.Context) error {
		unknown = append(unknown, c.Text())
		return nil
	}}), tele.OnText)

	require.NoError(t, h(b.NewContext(text(1, "/status@sshbot"))))
	require.NoError(t, h(b.NewContext(text(1, "status"))))
	require.NoError(t, h(b.NewContext(text(1, "/sessions@sshbot"))))
	assert.Equal(t, 1, statusCalls)
	assert.Equal(t, 0, adminCalls)
	assert.Equal(t, []string{"status", "/sessions@sshbot"}, unknown)

	conv.active = true
	require.NoError(t, h(b.NewContext(text(1, "/status@sshbot"))))
	assert.Equal(t, []string{"/status@sshbot"}, conv.handled)
	assert.Equal(t, 1, statusCalls)
}

func TestCallbackRoute(t *testing.T) {
	b := localBot(t)
	reg := tg.NewRegistry()
	var payloads []string
	require.NoError(t, reg.RegisterCallback("files.ls", func(c tele.Context) error {
		payloads = append(payloads, callbacks.CallbackPayload(c))
		return nil
	}))
	var missing int
	reg.SetCallbackNotFound(func(tele.Context) error {
		missing++
		return nil
	})
	h := CallbackRoute(reg).Handler

	press := func(data string) tele.Context {
		return b.NewContext(tele.Update{Callback: &tele.Callback{
			ID:     "q",
			Sender: &tele.User{ID: 1},
			Data:   data,
		}})
	}
	require.NoError(t, h(press(callbacks.Encode("files.ls", "2"))))
	require.NoError(t, h(press(callbacks.Encode("gone", ""))))
	assert.Equal(t, []string{"2"}, payloads)
	assert.Equal(t, 1, missing)
}

func TestCommandRoutesAdminAndAliases(t *testing.T) {
	b := localBot(t)
	reg := tg.NewRegistry()
	var calls, rejected int
	reg.RegisterCommand("/sessions", tg.Command{
		Description: "sessions",
		AdminOnly:   true,
		Aliases:     []string{"ls"},
		Handler: func(tele.Context) error {
			calls++
			return nil
		},
	})
	routes := CommandRoutes(reg, CommandRouteOptions{
		IsAdmin: func(id int64) bool { return id == 1 },
		OnAdminReject: func(tele.Context) error {
			rejected++
			return nil
		},
	})
	require.Len(t, routes, 2)

	require.NoError(t, route(t, routes, "/sessions")(b.NewContext(text(1, "/sessions"))))
	require.NoError(t, route(t, routes, "/ls")(b.NewContext(text(2, "/ls"))))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)
}

type codedErr struct{}

func (codedErr) Error() string { return "store down" }
func (codedErr) Code() string  { return "store io" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("save: %w", codedErr{})
	assert.Equal(t, "STORE_IO", errorCode(wrapped))
	assert.Equal(t, "fail", statusOf(wrapped))

	timeout := fmt.Errorf("exec: %w", context.DeadlineExceeded)
	assert.Equal(t, "TIMEOUT", errorCode(timeout))
	assert.Equal(t, "timeout", statusOf(timeout))
	assert.Equal(t, "fail", outcomeOf(timeout))

	assert.Equal(t, "cancelled", statusOf(context.Canceled))
	assert.Equal(t, "cancelled", outcomeOf(context.Canceled))
	assert.Equal(t, "PLAINERR", errorCode(&plainErr{}))
	assert.Equal(t, "ok", statusOf(nil))

	assert.Equal(t, "connect", routeName(" /Connect "))
	assert.Equal(t, "unknown", routeName("/"))
}
