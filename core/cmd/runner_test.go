package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/sshbot/core/config"
	coretelegram "github.com/m3rciful/sshbot/core/telegram"
)

type stubApp struct {
	opts coretelegram.RunOptions
}

func (s stubApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return s.opts, nil }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SSHBOT_TEST_CONFIG", "/env.yaml")

	p, err := ResolveConfigPath("/flag.yaml", "SSHBOT_TEST_CONFIG", "/def.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/flag.yaml", p)

	p, err = ResolveConfigPath("", "SSHBOT_TEST_CONFIG", "/def.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/env.yaml", p)

	t.Setenv("SSHBOT_TEST_CONFIG", "")
	p, err = ResolveConfigPath("", "SSHBOT_TEST_CONFIG", "/def.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/def.yaml", p)

	_, err = ResolveConfigPath("", "SSHBOT_TEST_CONFIG", "")
	assert.Error(t, err)
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var started, stopped, loggerClosed bool
	cfg := &coreconfig.Config{}

	err := Run(Options{
		ConfigPath: "/unused.yaml",
		LoadConfig: func(string) (coreconfig.Carrier, error) { return cfg, nil },
		Bootstrap: func(context.Context, coreconfig.Carrier) (TelegramApp, error) {
			return stubApp{opts: coretelegram.RunOptions{
				Config: cfg,
				OnStart: func(context.Context, coretelegram.Runtime) error {
					started = true
					return nil
				},
				OnStop: func(context.Context, coretelegram.Runtime) error {
					stopped = true
					return nil
				},
			}}, nil
		},
		ShutdownLogger: func() error {
			loggerClosed = true
			return nil
		},
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, stopped)
	assert.True(t, loggerClosed)
}

func TestRunBootstrapFailure(t *testing.T) {
	loggerClosed := false
	err := Run(Options{
		ConfigPath: "/unused.yaml",
		LoadConfig: func(string) (coreconfig.Carrier, error) { return &coreconfig.Config{}, nil },
		Bootstrap: func(context.Context, coreconfig.Carrier) (TelegramApp, error) {
			return nil, errors.New("no db")
		},
		ShutdownLogger: func() error {
			loggerClosed = true
			return nil
		},
	})
	assert.ErrorContains(t, err, "no db")
	assert.True(t, loggerClosed)
}
