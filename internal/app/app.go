// Package app wires the SSH dialog engine into the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/m3rciful/sshbot/core/bootstrap"
	corecmd "github.com/m3rciful/sshbot/core/cmd"
	coreconfig "github.com/m3rciful/sshbot/core/config"
	coredatabase "github.com/m3rciful/sshbot/core/database"
	"github.com/m3rciful/sshbot/core/logger"
	tg "github.com/m3rciful/sshbot/core/telegram"
	"github.com/m3rciful/sshbot/core/telegram/middleware"
	"github.com/m3rciful/sshbot/core/telegram/router"
	tgsender "github.com/m3rciful/sshbot/core/telegram/sender"
	"github.com/m3rciful/sshbot/internal/bot"
	"github.com/m3rciful/sshbot/internal/dialog"
	"github.com/m3rciful/sshbot/internal/remote"
	"github.com/m3rciful/sshbot/internal/sessionstore"
)

// App holds the long-lived components of a running bot.
type App struct {
	cfg      *Config
	store    sessionstore.Store
	engine   *dialog.Engine
	replier  *bot.Replier
	handlers *bot.Handlers
	registry *tg.Registry
	sweeper  *cron.Cron
}

// Bootstrap initializes logging and storage for cfg and builds the App.
// It matches corecmd.Options.Bootstrap.
func Bootstrap(ctx context.Context, carrier coreconfig.Carrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.DatabaseConfig(),
	})
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, cfg, res.DB)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App. db is required for the postgres store and ignored
// otherwise.
func New(ctx context.Context, cfg *Config, db *sqlx.DB) (*App, error) {
	store, err := OpenStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	sealer, err := NewSealer(ctx, cfg.Store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dialer, err := NewDialer(ctx, cfg.SSH)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	replier := bot.NewReplier()
	engine, err := dialog.New(cfg.EngineConfig(), dialog.Deps{
		Dialer:  dialer,
		Store:   store,
		Sealer:  sealer,
		Replier: replier,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		replier: replier,
		handlers: bot.New(bot.Options{
			Engine:   engine,
			Sessions: store.LoadAll,
		}),
		registry: tg.NewRegistry(),
	}
	if err := a.handlers.Register(a.registry); err != nil {
		_ = engine.Close()
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// OpenStore opens the configured session store.
func OpenStore(ctx context.Context, cfg *Config, db *sqlx.DB) (sessionstore.Store, error) {
	switch cfg.Store.Backend {
	case StorePostgres:
		if db == nil {
			return nil, errors.New("app: postgres store needs a database connection")
		}
		return sessionstore.NewPGStore(db), nil
	default:
		return sessionstore.OpenFile(ctx, cfg.Store.Path)
	}
}

// OpenConfiguredStore opens the store outside the bot runtime, connecting to
// and migrating Postgres when the store lives there.
func OpenConfiguredStore(ctx context.Context, cfg *Config) (sessionstore.Store, error) {
	dbCfg := cfg.DatabaseConfig()
	if dbCfg == nil {
		return OpenStore(ctx, cfg, nil)
	}
	db, err := coredatabase.Connect(ctx, *dbCfg)
	if err != nil {
		return nil, err
	}
	if err := coredatabase.RunMigrations(ctx, *dbCfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return OpenStore(ctx, cfg, db)
}

// NewSealer picks the credential sealer: configured keys first (comma
// separated, newest first), then the OS keyring. Without either, credentials
// stay in memory only.
func NewSealer(ctx context.Context, cfg StoreConfig) (sessionstore.Sealer, error) {
	if strings.TrimSpace(cfg.EncryptionKey) != "" {
		s, err := sessionstore.NewFernetSealer(strings.Split(cfg.EncryptionKey, ",")...)
		if err != nil {
			return nil, fmt.Errorf("app: session encryption key: %w", err)
		}
		return s, nil
	}
	if cfg.UseKeyring {
		key, err := sessionstore.KeyFromKeyring()
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return sessionstore.NewFernetSealer(key)
	}
	logger.Warn(ctx, logger.ComponentStore, "sealer.disabled",
		slog.String("hint", "set SESSION_ENCRYPTION_KEY or store.use_keyring to restore sessions after a restart"),
	)
	return sessionstore.NopSealer{}, nil
}

// NewDialer builds the SSH dialer with host key verification when a
// known_hosts file is configured.
func NewDialer(ctx context.Context, cfg SSHConfig) (*remote.SSHDialer, error) {
	cb, insecure, err := remote.HostKeyCallback(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if insecure {
		logger.Warn(ctx, logger.ComponentSSH, "host_keys.unverified",
			slog.String("hint", "set ssh.known_hosts_file to verify host keys"),
		)
	}
	return remote.NewSSHDialer(remote.Options{
		HostKeyCallback: cb,
		ConnectTimeout:  time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		KeepAlive:       time.Duration(cfg.KeepAliveSeconds) * time.Second,
	}), nil
}

// TelegramRunOptions implements corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	h := a.handlers
	return tg.RunOptions{
		Config:   core,
		Registry: a.registry,
		DispatcherOptions: tgsender.Options{
			MaxRetries:   3,
			RetryBackoff: 500 * time.Millisecond,
			MaxDuration:  30 * time.Second,
		},
		Middlewares: tg.DefaultMiddlewares(core, tg.MiddlewareHooks{
			OnDenied:  h.Denied,
			OnLimited: h.Limited,
		}),
		Routes: func(rt tg.Runtime) []tg.Route {
			a.replier.Bind(rt.Bot, rt.Dispatcher)
			h.UseFiles(rt.Bot)
			return router.Routes(a.registry, h, h, router.CommandRouteOptions{
				IsAdmin:       core.Access.IsAdmin,
				OnAdminReject: h.AdminOnly,
			})
		},
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	middleware.SetPayloadRedactor(a.handlers.Redact)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(a.cfg.Store.SweepSchedule, func() {
		sctx := context.Background()
		if n := a.engine.SweepIdle(sctx); n > 0 {
			logger.Debug(sctx, logger.ComponentApp, "sweep", slog.Int("checked", n))
		}
	}); err != nil {
		return fmt.Errorf("app: schedule sweeper: %w", err)
	}
	sweeper.Start()
	a.sweeper = sweeper

	if a.cfg.Store.SkipRestore {
		return nil
	}
	if _, err := a.engine.Restore(ctx); err != nil {
		// The bot still works; users simply reconnect.
		logger.Error(ctx, logger.ComponentApp, "restore_failed", slog.String("err", err.Error()))
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	if a.sweeper != nil {
		select {
		case <-a.sweeper.Stop().Done():
		case <-ctx.Done():
		}
	}
	middleware.SetPayloadRedactor(nil)

	var errs []error
	if err := a.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
