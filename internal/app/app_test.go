package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/sshbot/core/telegram"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

func fileConfig(t *testing.T) *Config {
	t.Helper()
	cfg := minimalConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, cfg.Normalize())
	return cfg
}

func TestNewSealer(t *testing.T) {
	ctx := context.Background()

	s, err := NewSealer(ctx, StoreConfig{})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	k1, err := sessionstore.GenerateKey()
	require.NoError(t, err)
	k2, err := sessionstore.GenerateKey()
	require.NoError(t, err)
	s, err = NewSealer(ctx, StoreConfig{EncryptionKey: k1 + ", " + k2})
	require.NoError(t, err)
	assert.True(t, s.Enabled())

	_, err = NewSealer(ctx, StoreConfig{EncryptionKey: "not-a-key"})
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	cfg := fileConfig(t)
	store, err := OpenStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(*sessionstore.FileStore)
	assert.True(t, ok)

	cfg.Store.Backend = StorePostgres
	_, err = OpenStore(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewDialerRejectsMissingKnownHosts(t *testing.T) {
	_, err := NewDialer(context.Background(), SSHConfig{KnownHostsFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	d, err := NewDialer(context.Background(), SSHConfig{})
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestAppLifecycle(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, fileConfig(t), nil)
	require.NoError(t, err)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Middlewares)
	_, _, ok := opts.Registry.LookupCommand("/connect")
	assert.True(t, ok)

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	rt := tg.Runtime{Bot: b, Registry: opts.Registry}
	assert.NotEmpty(t, opts.Routes(rt))

	require.NoError(t, opts.OnStart(ctx, rt))
	require.NotNil(t, a.sweeper)
	assert.Len(t, a.sweeper.Entries(), 1)
	require.NoError(t, opts.OnStop(ctx, rt))
}
