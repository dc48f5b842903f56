package sessionstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(userID int64) Record {
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	return Record{
		UserID:       userID,
		SessionID:    "3b1f0c2e-0000-4000-8000-000000000001",
		Host:         "example.com",
		Port:         22,
		Username:     "admin",
		AuthMethod:   "password",
		RemoteCWD:    "/home/admin",
		ConnectedAt:  at,
		LastActivity: at,
	}
}

func openTemp(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "sessions.json")
	s, err := OpenFile(context.Background(), path)
	require.NoError(t, err)
	return s, path
}

func TestFileStoreSaveIsIdempotent(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	r := sampleRecord(42)

	require.NoError(t, s.Save(ctx, r))
	require.NoError(t, s.Save(ctx, r))

	reopened, err := OpenFile(ctx, path)
	require.NoError(t, err)
	all, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, r.Host, all[0].Host)
	assert.Equal(t, r.RemoteCWD, all[0].RemoteCWD)
	assert.False(t, all[0].SavedAt.IsZero())
}

func TestFileStoreUpdateAndDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRecord(1)))
	require.NoError(t, s.Save(ctx, sampleRecord(2)))

	require.NoError(t, s.UpdateCWD(ctx, 2, "/var/log"))
	require.NoError(t, s.UpdateCWD(ctx, 99, "/nowhere"))
	require.NoError(t, s.Delete(ctx, 1))
	require.NoError(t, s.Delete(ctx, 1))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2), all[0].UserID)
	assert.Equal(t, "/var/log", all[0].RemoteCWD)
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"sessions":{"42":`), 0o600))

	s, err := OpenFile(context.Background(), path)
	require.NoError(t, err)
	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var quarantined bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "sessions.json.corrupt-") {
			quarantined = true
		}
	}
	assert.True(t, quarantined, "corrupt document should be moved aside")

	require.NoError(t, s.Save(context.Background(), sampleRecord(7)))
	all, err = s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileStoreMismatchedKeyIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	doc := `{"version":1,"sessions":{"1":{"user_id":2,"host":"h","port":22}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := OpenFile(context.Background(), path)
	require.NoError(t, err)
	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStoreFailedWriteKeepsPreviousState(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRecord(1)))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s.rename = func(string, string) error { return errors.New("disk on fire") }
	err = s.Save(ctx, sampleRecord(2))
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save", se.Op)
	assert.Equal(t, int64(2), se.UserID)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}

	s.rename = os.Rename
	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileStoreIgnoresStrayTempFiles(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRecord(1)))
	stray := filepath.Join(filepath.Dir(path), ".sessions.json-123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte(`{"half`), 0o600))

	reopened, err := OpenFile(ctx, path)
	require.NoError(t, err)
	all, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileStoreFilePermissions(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Save(context.Background(), sampleRecord(1)))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
