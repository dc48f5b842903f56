package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/sshbot/core/config"
)

type brokenSink struct{}

func (brokenSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterLevelFloor(t *testing.T) {
	all, warn := &bytes.Buffer{}, &bytes.Buffer{}
	aw := newAsyncWriter([]sinkSpec{
		{name: "all", w: all, min: slog.LevelDebug},
		{name: "errors", w: warn, min: slog.LevelWarn},
	})
	if err := aw.Write(slog.LevelInfo, []byte("connected\n")); err != nil {
		t.Fatal(err)
	}
	if err := aw.Write(slog.LevelError, []byte("auth failed\n")); err != nil {
		t.Fatal(err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := all.String(); got != "connected\nauth failed\n" {
		t.Fatalf("all sink = %q", got)
	}
	if got := warn.String(); got != "auth failed\n" {
		t.Fatalf("errors sink = %q", got)
	}
}

func TestAsyncWriterKeepsHealthySinks(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]sinkSpec{
		{name: "bot_file", w: brokenSink{}, min: slog.LevelDebug},
		{name: "stdout", w: buf, min: slog.LevelDebug},
	})
	for _, line := range []string{"one\n", "two\n"} {
		if err := aw.Write(slog.LevelInfo, []byte(line)); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	err := aw.Close()
	if err == nil || !strings.Contains(err.Error(), "bot_file") {
		t.Fatalf("expected bot_file failure, got %v", err)
	}
	if got := buf.String(); got != "one\ntwo\n" {
		t.Fatalf("healthy sink = %q", got)
	}
}

func TestAsyncWriterWriteAfterClose(t *testing.T) {
	aw := bufferWriter(&bytes.Buffer{})
	if err := aw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := aw.Write(slog.LevelInfo, []byte("late\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("write after close = %v", err)
	}
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush after close = %v", err)
	}
}

func TestRotatingFileShiftsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	r, err := openRotatingFile(path, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := r.Write([]byte("12345678\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{path, path + ".1", path + ".2"} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != "12345678\n" {
			t.Fatalf("%s = %q", name, data)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("expected at most two backups, stat .3: %v", err)
	}
}

func TestRotatingFileWithoutBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	r, err := openRotatingFile(path, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = r.Write([]byte("first...\n"))
	_, _ = r.Write([]byte("second..\n"))
	_ = r.Close()
	data, _ := os.ReadFile(path)
	if string(data) != "second..\n" {
		t.Fatalf("file = %q", data)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Fatalf("unexpected backup: %v", err)
	}
}

func TestComponentSampler(t *testing.T) {
	fallback, rules := parseSampleSpec("tg=1/3, dialog=off, *=1/2")
	s := newComponentSampler(fallback, rules)

	want := map[string][]bool{
		"tg":      {true, false, false, true},
		"tg.wire": {true, false, false, true},
		"dialog":  {true, true, true, true},
		"ssh":     {true, false, true, false},
	}
	for component, seq := range want {
		for i, w := range seq {
			if got := s.Allow(component); got != w {
				t.Fatalf("%s event %d: allow = %v, want %v", component, i, got, w)
			}
		}
	}
}

func TestParseSampleSpec(t *testing.T) {
	cases := map[string]ratio{
		"":        defaultDebugRatio,
		"off":     {},
		"20":      {num: 1, den: 20},
		"2/5":     {num: 2, den: 5},
		"9/3":     {num: 3, den: 3},
		"garbage": defaultDebugRatio,
	}
	for spec, want := range cases {
		got, rules := parseSampleSpec(spec)
		if got != want || len(rules) != 0 {
			t.Errorf("parseSampleSpec(%q) = %+v %v, want %+v", spec, got, rules, want)
		}
	}
}

func TestResolveSettings(t *testing.T) {
	dir := t.TempDir()
	s := resolveSettings(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:      "warning",
		Format:     "text",
		KeysOrder:  "default",
		Dir:        dir,
		BotFile:    "bot.log",
		ErrorsFile: "errors.log",
		MaxSizeMB:  2,
	}})
	if s.level != slog.LevelWarn || s.format != formatKV {
		t.Fatalf("level/format = %v/%v", s.level, s.format)
	}
	if len(s.keyOrder) != len(defaultKeyOrder) {
		t.Fatalf("key order = %v", s.keyOrder)
	}
	if len(s.sinks) != 2 {
		t.Fatalf("sinks = %+v", s.sinks)
	}
	errorsSink := s.sinks[1]
	if errorsSink.path != filepath.Join(dir, "errors.log") || errorsSink.min != slog.LevelWarn {
		t.Fatalf("errors sink = %+v", errorsSink)
	}
	if errorsSink.maxBytes != 2<<20 || errorsSink.backups != 3 {
		t.Fatalf("rotation = %d bytes, %d backups", errorsSink.maxBytes, errorsSink.backups)
	}

	if d := resolveSettings(nil); d.format != formatJSON || d.level != slog.LevelInfo || len(d.sinks) != 0 {
		t.Fatalf("defaults = %+v", d)
	}
	if dev := resolveSettings(&coreconfig.Config{Logging: coreconfig.LoggingConfig{Profile: "dev"}}); dev.format != formatKV {
		t.Fatalf("dev profile format = %v", dev.format)
	}
}
