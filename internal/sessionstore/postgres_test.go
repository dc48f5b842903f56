package sessionstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pgSavedAt = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func newMockPGStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPGStore(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return pgSavedAt }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return s, mock
}

func upsertArgs(r Record) []driver.Value {
	return []driver.Value{
		r.UserID, r.SessionID, r.Host, r.Port, r.Username, r.AuthMethod,
		r.SealedCredential, r.RemoteCWD, r.ConnectedAt, r.LastActivity, pgSavedAt,
	}
}

var sessionColumns = []string{
	"user_id", "session_id", "host", "port", "username", "auth_method",
	"sealed_credential", "remote_cwd", "connected_at", "last_activity", "saved_at",
}

func TestPGStoreSaveUpsertsByUser(t *testing.T) {
	s, mock := newMockPGStore(t)
	ctx := context.Background()
	r := sampleRecord(42)
	r.SealedCredential = []byte("gAAAAABsealed")

	upsert := regexp.QuoteMeta("INSERT INTO ssh_sessions") + `(?s).*` + regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")
	for i := 0; i < 2; i++ {
		mock.ExpectExec(upsert).
			WithArgs(upsertArgs(r)...).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	require.NoError(t, s.Save(ctx, r))
	require.NoError(t, s.Save(ctx, r))

	mock.ExpectQuery(regexp.QuoteMeta("FROM ssh_sessions")).
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			r.UserID, r.SessionID, r.Host, r.Port, r.Username, r.AuthMethod,
			r.SealedCredential, r.RemoteCWD, r.ConnectedAt, r.LastActivity, pgSavedAt,
		))
	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, r.Host, all[0].Host)
	assert.Equal(t, 22, all[0].Port)
	assert.Equal(t, []byte("gAAAAABsealed"), all[0].SealedCredential)
	assert.Equal(t, pgSavedAt, all[0].SavedAt)
}

func TestPGStoreLoadAllEmpty(t *testing.T) {
	s, mock := newMockPGStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ssh_sessions")).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPGStoreAbsentUserIsNoOp(t *testing.T) {
	s, mock := newMockPGStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ssh_sessions SET remote_cwd")).
		WithArgs(int64(7), "/srv", pgSavedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ssh_sessions")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.UpdateCWD(ctx, 7, "/srv"))
	assert.NoError(t, s.Delete(ctx, 7))
}

func TestPGStoreErrorsAreWrapped(t *testing.T) {
	s, mock := newMockPGStore(t)
	ctx := context.Background()
	cause := errors.New("connection reset")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ssh_sessions")).WillReturnError(cause)
	mock.ExpectQuery(regexp.QuoteMeta("FROM ssh_sessions")).WillReturnError(cause)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ssh_sessions")).WillReturnError(cause)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ssh_sessions")).WillReturnError(cause)

	cases := []struct {
		op     string
		userID int64
		run    func() error
	}{
		{"save", 9, func() error { return s.Save(ctx, sampleRecord(9)) }},
		{"load_all", 0, func() error { _, err := s.LoadAll(ctx); return err }},
		{"delete", 9, func() error { return s.Delete(ctx, 9) }},
		{"update_cwd", 9, func() error { return s.UpdateCWD(ctx, 9, "/tmp") }},
	}
	for _, tc := range cases {
		err := tc.run()
		var se *StoreError
		require.ErrorAs(t, err, &se, tc.op)
		assert.Equal(t, tc.op, se.Op)
		assert.Equal(t, tc.userID, se.UserID)
		assert.Equal(t, "STORE_IO", se.Code())
		assert.ErrorIs(t, err, cause)
	}
}

func TestPGStoreClose(t *testing.T) {
	s, mock := newMockPGStore(t)
	mock.ExpectClose()
	assert.NoError(t, s.Close())
}
