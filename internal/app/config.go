package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	coreconfig "github.com/m3rciful/sshbot/core/config"
	coredatabase "github.com/m3rciful/sshbot/core/database"
	"github.com/m3rciful/sshbot/internal/dialog"
)

const (
	// StoreFile keeps sessions in a JSON file.
	StoreFile = "file"
	// StorePostgres keeps sessions in Postgres.
	StorePostgres = "postgres"
)

// SSHConfig controls outgoing connections.
type SSHConfig struct {
	// KnownHostsFile enables host key verification; empty accepts any key.
	KnownHostsFile        string `yaml:"known_hosts_file" envconfig:"SSH_KNOWN_HOSTS_FILE"`
	DefaultPort           int    `yaml:"default_port" envconfig:"SSH_DEFAULT_PORT"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" envconfig:"SSH_CONNECT_TIMEOUT_SECONDS"`
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds" envconfig:"SSH_COMMAND_TIMEOUT_SECONDS"`
	KeepAliveSeconds      int    `yaml:"keepalive_seconds" envconfig:"SSH_KEEPALIVE_SECONDS"`
}

// LimitsConfig bounds what a single user may do.
type LimitsConfig struct {
	MaxConnectionsPerUser int   `yaml:"max_connections_per_user" envconfig:"MAX_CONNECTIONS_PER_USER"`
	SessionTimeoutMinutes int   `yaml:"session_timeout_minutes" envconfig:"SESSION_TIMEOUT_MINUTES"`
	MaxOutputLength       int   `yaml:"max_output_length" envconfig:"MAX_OUTPUT_LENGTH"`
	PageSize              int   `yaml:"page_size" envconfig:"OUTPUT_PAGE_SIZE"`
	MaxEditBytes          int64 `yaml:"max_edit_bytes" envconfig:"MAX_EDIT_BYTES"`
	MaxTransferBytes      int64 `yaml:"max_transfer_bytes" envconfig:"MAX_TRANSFER_BYTES"`
	SearchMaxResults      int   `yaml:"search_max_results" envconfig:"SEARCH_MAX_RESULTS"`
	QueueSize             int   `yaml:"queue_size" envconfig:"USER_QUEUE_SIZE"`
}

// StoreConfig selects where sessions are persisted.
type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"SESSION_STORE"`
	Path    string `yaml:"path" envconfig:"SESSION_STORE_PATH"`
	// EncryptionKey is a base64 fernet key. Without it, and without the
	// keyring, credentials are not persisted and restored sessions are dropped.
	EncryptionKey string `yaml:"encryption_key" envconfig:"SESSION_ENCRYPTION_KEY"`
	UseKeyring    bool   `yaml:"use_keyring" envconfig:"SESSION_USE_KEYRING"`
	// SweepSchedule is a cron spec for the idle session sweeper.
	SweepSchedule string `yaml:"sweep_schedule" envconfig:"SESSION_SWEEP_SCHEDULE"`
	// SkipRestore leaves persisted sessions untouched at startup.
	SkipRestore bool `yaml:"skip_restore" envconfig:"SESSION_SKIP_RESTORE"`
}

// Config is the application configuration. The core part drives the
// Telegram runtime.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	SSH      SSHConfig           `yaml:"ssh"`
	Limits   LimitsConfig        `yaml:"limits"`
	Store    StoreConfig         `yaml:"store"`
	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig implements coreconfig.Carrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads path and the environment into a normalized Config.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	if c.SSH.DefaultPort == 0 {
		c.SSH.DefaultPort = 22
	}
	if c.SSH.DefaultPort < 1 || c.SSH.DefaultPort > 65535 {
		return fmt.Errorf("ssh.default_port out of range: %d", c.SSH.DefaultPort)
	}
	if c.SSH.ConnectTimeoutSeconds <= 0 {
		c.SSH.ConnectTimeoutSeconds = 30
	}
	if c.SSH.CommandTimeoutSeconds <= 0 {
		c.SSH.CommandTimeoutSeconds = 60
	}
	if c.SSH.KeepAliveSeconds < 0 {
		c.SSH.KeepAliveSeconds = 0
	}

	l := &c.Limits
	if l.MaxConnectionsPerUser <= 0 {
		l.MaxConnectionsPerUser = 3
	}
	if l.SessionTimeoutMinutes <= 0 {
		l.SessionTimeoutMinutes = 30
	}
	if l.MaxOutputLength <= 0 {
		l.MaxOutputLength = 50000
	}
	if l.PageSize <= 0 {
		l.PageSize = 3500
	}
	// Telegram rejects messages over 4096 characters; leave room for markup.
	if l.PageSize > 3800 {
		return fmt.Errorf("limits.page_size too large: %d (max 3800)", l.PageSize)
	}
	if l.MaxEditBytes <= 0 {
		l.MaxEditBytes = 1 << 20
	}
	if l.MaxTransferBytes <= 0 {
		l.MaxTransferBytes = 20 << 20
	}
	if l.SearchMaxResults <= 0 {
		l.SearchMaxResults = 50
	}

	s := &c.Store
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		s.Backend = StoreFile
	case StoreFile, StorePostgres:
	default:
		return fmt.Errorf("invalid store.backend: %q (want %q or %q)", s.Backend, StoreFile, StorePostgres)
	}
	if s.Backend == StoreFile && s.Path == "" {
		s.Path = "data/sessions.json"
	}
	if s.SweepSchedule == "" {
		s.SweepSchedule = "@every 1m"
	}
	if _, err := cron.ParseStandard(s.SweepSchedule); err != nil {
		return fmt.Errorf("invalid store.sweep_schedule %q: %w", s.SweepSchedule, err)
	}

	if s.Backend == StorePostgres {
		db := &c.Database
		if db.Host == "" || db.Name == "" {
			return fmt.Errorf("database host and name are required for the postgres store")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.MigrationsDir == "" {
			db.MigrationsDir = "migrations"
		}
	}
	return nil
}

// DatabaseConfig returns the database settings, or nil when sessions are
// kept in a file.
func (c *Config) DatabaseConfig() *coredatabase.Config {
	if c.Store.Backend != StorePostgres {
		return nil
	}
	db := c.Database
	return &db
}

// EngineConfig maps the limits onto the dialog engine.
func (c *Config) EngineConfig() dialog.Config {
	return dialog.Config{
		MaxConnectionsPerUser: c.Limits.MaxConnectionsPerUser,
		IdleTimeout:           time.Duration(c.Limits.SessionTimeoutMinutes) * time.Minute,
		MaxOutputLength:       c.Limits.MaxOutputLength,
		PageSize:              c.Limits.PageSize,
		ConnectTimeout:        time.Duration(c.SSH.ConnectTimeoutSeconds) * time.Second,
		CommandTimeout:        time.Duration(c.SSH.CommandTimeoutSeconds) * time.Second,
		MaxEditSize:           c.Limits.MaxEditBytes,
		MaxTransferSize:       c.Limits.MaxTransferBytes,
		DefaultPort:           c.SSH.DefaultPort,
		SearchMaxResults:      c.Limits.SearchMaxResults,
		MailboxSize:           c.Limits.QueueSize,
	}
}
