package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/sshbot/core/buildinfo"
	coreconfig "github.com/m3rciful/sshbot/core/config"
)

// Component names shared by the domain packages.
const (
	ComponentApp    = "app"
	ComponentTG     = "tg"
	ComponentDB     = "db"
	ComponentSSH    = "ssh"
	ComponentStore  = "store"
	ComponentDialog = "dialog"
)

var (
	initOnce sync.Once

	shutdownMu sync.Mutex
	shutDown   bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	sampler     = newComponentSampler(defaultDebugRatio, nil)
	traceAlways bool

	// L is the root logger; nil until InitLogger runs.
	L *slog.Logger
	// DB logs database connection events.
	DB *slog.Logger
	// MIG logs schema migrations.
	MIG *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
)

// settings is the resolved logging section of the config.
type settings struct {
	level    slog.Level
	format   logFormat
	keyOrder []string
	profile  string
	sample   string
	sinks    []fileSink
}

// fileSink is a log file next to stdout.
type fileSink struct {
	name     string
	path     string
	min      slog.Level
	maxBytes int64
	backups  int
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		level:    slog.LevelInfo,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
		profile:  "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if order := splitList(lc.KeysOrder); len(order) > 0 && order[0] != "default" {
		s.keyOrder = order
	}
	s.sample = strings.TrimSpace(lc.DebugSample)

	dir := strings.TrimSpace(lc.Dir)
	if dir == "" {
		return s
	}
	maxBytes := int64(lc.MaxSizeMB) << 20
	backups := lc.MaxBackups
	if maxBytes > 0 && backups == 0 {
		backups = 3
	}
	if name := strings.TrimSpace(lc.BotFile); name != "" {
		s.sinks = append(s.sinks, fileSink{name: "bot_file", path: filepath.Join(dir, name), min: slog.LevelDebug, maxBytes: maxBytes, backups: backups})
	}
	if name := strings.TrimSpace(lc.ErrorsFile); name != "" {
		s.sinks = append(s.sinks, fileSink{name: "errors_file", path: filepath.Join(dir, name), min: slog.LevelWarn, maxBytes: maxBytes, backups: backups})
	}
	return s
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		fallback, rules := parseSampleSpec(s.sample)
		sampler = newComponentSampler(fallback, rules)
		traceAlways = envFlag("TRACE") || envFlag("LOG_TRACE")

		specs := []sinkSpec{{name: "stdout", w: os.Stdout, min: slog.LevelDebug}}
		for _, fs := range s.sinks {
			f, err := openRotatingFile(fs.path, fs.maxBytes, fs.backups)
			if err != nil {
				// stdout alone still carries every line.
				fmt.Fprintf(os.Stderr, "logger: %s disabled: %v\n", fs.name, err)
				continue
			}
			specs = append(specs, sinkSpec{name: fs.name, w: f, min: fs.min})
			logClosers = append(logClosers, f)
		}
		logWriter = newAsyncWriter(specs)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(L)
		DB = L.With("component", ComponentDB)
		MIG = L.With("component", "db.migrate")
		TG = L.With("component", ComponentTG)

		logStartup(s)
	})
	return nil
}

func logStartup(s settings) {
	attrs := []slog.Attr{
		slog.String("component", ComponentApp),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", s.profile),
		slog.String("log_level", s.level.String()),
	}
	for _, fs := range s.sinks {
		attrs = append(attrs, slog.String(fs.name, fs.path))
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes buffered output and closes the log files.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutDown {
		return nil
	}
	shutDown = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LogEvent writes one event through logg, falling back to the context logger
// and then the root logger.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		logg = L
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns the root logger scoped to name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs at level for component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	component = strings.TrimSpace(component)
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && component != "" {
			logg = logg.With("component", component)
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether the next high-volume debug event of
// component should be logged. TRACE=1 in the environment keeps them all.
func ShouldSampleDebug(component string) bool {
	if traceAlways {
		return true
	}
	return sampler.Allow(component)
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
