package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/m3rciful/sshbot/core/logger"
)

const fileFormatVersion = 1

type fileDoc struct {
	Version  int               `json:"version"`
	Sessions map[string]Record `json:"sessions"`
}

// FileStore keeps records in one JSON document. Writes go to a temp file in
// the same directory which is synced and renamed over the document, so a crash
// leaves either the old or the new version.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[int64]Record
	now     func() time.Time
	rename  func(oldpath, newpath string) error
}

// OpenFile loads the document at path. An unreadable or corrupt document is
// logged and moved aside; the store then starts empty.
func OpenFile(ctx context.Context, path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session store path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand session store path: %w", err)
	}
	s := &FileStore{
		path:    expanded,
		records: map[int64]Record{},
		now:     time.Now,
		rename:  os.Rename,
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		logger.Error(ctx, logger.ComponentStore, "store.open",
			slog.String("status", "fail"),
			slog.String("path", expanded),
			slog.String("err", err.Error()),
		)
	}
	s.records = s.read(ctx)
	logger.Info(ctx, logger.ComponentStore, "store.open",
		slog.String("status", "ok"),
		slog.String("path", expanded),
		slog.Int("count", len(s.records)),
	)
	return s, nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read(ctx context.Context) map[int64]Record {
	out := map[int64]Record{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out
	}
	if err != nil {
		logger.Error(ctx, logger.ComponentStore, "store.read",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return out
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(ctx, err)
		return out
	}
	for key, r := range doc.Sessions {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id != r.UserID {
			s.quarantine(ctx, fmt.Errorf("record key %q does not match user id %d", key, r.UserID))
			return map[int64]Record{}
		}
		out[id] = r
	}
	return out
}

func (s *FileStore) quarantine(ctx context.Context, cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("path", s.path),
		slog.String("err", cause.Error()),
	}
	if err := os.Rename(s.path, aside); err == nil {
		attrs = append(attrs, slog.String("moved_to", aside))
	}
	logger.Error(ctx, logger.ComponentStore, "store.corrupt", attrs...)
}

func (s *FileStore) Save(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.SavedAt = s.now().UTC()
	next := s.cloneLocked()
	next[r.UserID] = r
	if err := s.writeLocked(next); err != nil {
		return &StoreError{Op: "save", UserID: r.UserID, Err: err}
	}
	s.records = next
	return nil
}

func (s *FileStore) LoadAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.read(ctx)
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		return nil
	}
	next := s.cloneLocked()
	delete(next, userID)
	if err := s.writeLocked(next); err != nil {
		return &StoreError{Op: "delete", UserID: userID, Err: err}
	}
	s.records = next
	return nil
}

func (s *FileStore) UpdateCWD(ctx context.Context, userID int64, cwd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		return nil
	}
	r.RemoteCWD = cwd
	r.SavedAt = s.now().UTC()
	next := s.cloneLocked()
	next[userID] = r
	if err := s.writeLocked(next); err != nil {
		return &StoreError{Op: "update_cwd", UserID: userID, Err: err}
	}
	s.records = next
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) cloneLocked() map[int64]Record {
	next := make(map[int64]Record, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	return next
}

func (s *FileStore) writeLocked(records map[int64]Record) error {
	doc := fileDoc{Version: fileFormatVersion, Sessions: make(map[string]Record, len(records))}
	for id, r := range records {
		doc.Sessions[strconv.FormatInt(id, 10)] = r
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	committed = true
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable; failures only weaken durability.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
