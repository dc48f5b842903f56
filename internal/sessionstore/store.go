// Package sessionstore persists connection parameters so sessions survive a restart.
package sessionstore

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Record is the persisted form of one user's session. SealedCredential is
// either empty or produced by a Sealer; plaintext secrets are never stored.
type Record struct {
	UserID           int64     `json:"user_id" db:"user_id"`
	SessionID        string    `json:"session_id" db:"session_id"`
	Host             string    `json:"host" db:"host"`
	Port             int       `json:"port" db:"port"`
	Username         string    `json:"username" db:"username"`
	AuthMethod       string    `json:"auth_method" db:"auth_method"`
	SealedCredential []byte    `json:"sealed_credential,omitempty" db:"sealed_credential"`
	RemoteCWD        string    `json:"remote_cwd" db:"remote_cwd"`
	ConnectedAt      time.Time `json:"connected_at" db:"connected_at"`
	LastActivity     time.Time `json:"last_activity" db:"last_activity"`
	SavedAt          time.Time `json:"saved_at" db:"saved_at"`
}

// Store is the durable user id → session mapping. Every method is atomic with
// respect to crashes and safe for concurrent use.
type Store interface {
	// Save upserts r keyed by r.UserID.
	Save(ctx context.Context, r Record) error
	// LoadAll returns every record ordered by user id.
	LoadAll(ctx context.Context) ([]Record, error)
	// Delete removes the record; absent ids are a no-op.
	Delete(ctx context.Context, userID int64) error
	// UpdateCWD rewrites the working directory; absent ids are a no-op.
	UpdateCWD(ctx context.Context, userID int64, cwd string) error
	Close() error
}

// StoreError wraps a persistence failure.
type StoreError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *StoreError) Error() string {
	if e.UserID == 0 {
		return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session store %s user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Code reports a stable identifier for handler summaries.
func (e *StoreError) Code() string { return "STORE_IO" }

func sortRecords(out []Record) {
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
}
