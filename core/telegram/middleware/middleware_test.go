package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b
}

func textUpdate(id int, userID int64, text string) tele.Update {
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

func counting(calls *int) tele.HandlerFunc {
	return func(tele.Context) error {
		*calls++
		return nil
	}
}

func TestAccessMiddleware(t *testing.T) {
	b := offlineBot(t)
	var passed, rejected int
	mw := AccessMiddleware(AccessOptions{
		Allows:   func(id int64) bool { return id == 7 },
		OnReject: counting(&rejected),
	})
	h := mw(counting(&passed))

	require.NoError(t, h(b.NewContext(textUpdate(1, 7, "hi"))))
	require.NoError(t, h(b.NewContext(textUpdate(2, 8, "hi"))))
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, rejected)
}

func TestAdminOnlyMiddleware(t *testing.T) {
	b := offlineBot(t)
	var passed int
	h := AdminOnlyMiddleware(AdminOptions{IsAdmin: func(id int64) bool { return id == 1 }})(counting(&passed))
	require.NoError(t, h(b.NewContext(textUpdate(1, 1, "/sessions"))))
	require.NoError(t, h(b.NewContext(textUpdate(2, 2, "/sessions"))))
	assert.Equal(t, 1, passed)

	closed := AdminOnlyMiddleware(AdminOptions{})(counting(&passed))
	require.NoError(t, closed(b.NewContext(textUpdate(3, 1, "/sessions"))))
	assert.Equal(t, 1, passed)
}

func TestRateLimitMiddleware(t *testing.T) {
	b := offlineBot(t)
	now := time.Unix(1_700_000_000, 0)
	var passed, limited int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		OnLimited: counting(&limited),
		Now:       func() time.Time { return now },
	})(counting(&passed))

	require.NoError(t, h(b.NewContext(textUpdate(1, 5, "a"))))
	require.NoError(t, h(b.NewContext(textUpdate(2, 5, "b"))))
	require.NoError(t, h(b.NewContext(textUpdate(3, 6, "c"))))
	now = now.Add(2 * time.Second)
	require.NoError(t, h(b.NewContext(textUpdate(4, 5, "d"))))

	assert.Equal(t, 3, passed)
	assert.Equal(t, 1, limited)
}

func TestRateLimitExclusions(t *testing.T) {
	b := offlineBot(t)
	var passed int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})(counting(&passed))
	for i := 1; i <= 3; i++ {
		require.NoError(t, h(b.NewContext(textUpdate(i, 5, "x"))))
	}
	assert.Equal(t, 3, passed)
}

func TestRecoverMiddleware(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(b.NewContext(textUpdate(1, 5, "x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	want := errors.New("plain")
	err = RecoverMiddleware(func(tele.Context) error { return want })(b.NewContext(textUpdate(2, 5, "x")))
	assert.ErrorIs(t, err, want)
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	b := offlineBot(t)
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		return nil
	})
	require.NoError(t, h(b.NewContext(textUpdate(42, 5, "ls"))))
	assert.NotEmpty(t, rid)
}

func TestPayloadRedactor(t *testing.T) {
	t.Cleanup(func() { SetPayloadRedactor(nil) })
	assert.False(t, redacted(5))
	SetPayloadRedactor(func(id int64) bool { return id == 5 })
	assert.True(t, redacted(5))
	assert.False(t, redacted(6))
	SetPayloadRedactor(nil)
	assert.False(t, redacted(5))
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", UpdateKind(textUpdate(1, 1, "x")))
	assert.Equal(t, "callback", UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}
