package sessionstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	upsertSQL = `
INSERT INTO ssh_sessions (
	user_id, session_id, host, port, username, auth_method,
	sealed_credential, remote_cwd, connected_at, last_activity, saved_at
) VALUES (
	:user_id, :session_id, :host, :port, :username, :auth_method,
	:sealed_credential, :remote_cwd, :connected_at, :last_activity, :saved_at
)
ON CONFLICT (user_id) DO UPDATE SET
	session_id = EXCLUDED.session_id,
	host = EXCLUDED.host,
	port = EXCLUDED.port,
	username = EXCLUDED.username,
	auth_method = EXCLUDED.auth_method,
	sealed_credential = EXCLUDED.sealed_credential,
	remote_cwd = EXCLUDED.remote_cwd,
	connected_at = EXCLUDED.connected_at,
	last_activity = EXCLUDED.last_activity,
	saved_at = EXCLUDED.saved_at`

	selectAllSQL = `
SELECT user_id, session_id, host, port, username, auth_method,
	sealed_credential, remote_cwd, connected_at, last_activity, saved_at
FROM ssh_sessions
ORDER BY user_id`

	deleteSQL    = `DELETE FROM ssh_sessions WHERE user_id = $1`
	updateCWDSQL = `UPDATE ssh_sessions SET remote_cwd = $2, saved_at = $3 WHERE user_id = $1`
)

// PGStore keeps records in the ssh_sessions table. Each operation is a single
// statement, so Postgres provides the atomicity.
type PGStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPGStore wraps an open connection; the schema comes from migrations.
func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

func (s *PGStore) Save(ctx context.Context, r Record) error {
	r.SavedAt = s.now().UTC()
	if _, err := s.db.NamedExecContext(ctx, upsertSQL, r); err != nil {
		return &StoreError{Op: "save", UserID: r.UserID, Err: err}
	}
	return nil
}

func (s *PGStore) LoadAll(ctx context.Context) ([]Record, error) {
	var out []Record
	if err := s.db.SelectContext(ctx, &out, selectAllSQL); err != nil {
		return nil, &StoreError{Op: "load_all", Err: err}
	}
	return out, nil
}

func (s *PGStore) Delete(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, userID); err != nil {
		return &StoreError{Op: "delete", UserID: userID, Err: err}
	}
	return nil
}

func (s *PGStore) UpdateCWD(ctx context.Context, userID int64, cwd string) error {
	if _, err := s.db.ExecContext(ctx, updateCWDSQL, userID, cwd, s.now().UTC()); err != nil {
		return &StoreError{Op: "update_cwd", UserID: userID, Err: err}
	}
	return nil
}

func (s *PGStore) Close() error { return s.db.Close() }
