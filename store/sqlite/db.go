// Package sqlite stores users, sessions and provider flow state in a SQLite database.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DB is an open handoff database.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("[sqlite Open] path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite Open] failed to open database")
	}
	// one writer at a time avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "[sqlite Open] %s", pragma)
		}
	}

	d := &DB{db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		email          TEXT NOT NULL UNIQUE,
		name           TEXT NOT NULL DEFAULT '',
		image          TEXT NOT NULL DEFAULT '',
		email_verified INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL,
		last_login     INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		token      TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
	`CREATE TABLE IF NOT EXISTS auth_flow_state (
		state                 TEXT PRIMARY KEY,
		provider              TEXT NOT NULL,
		code_verifier         TEXT NOT NULL,
		callback_url          TEXT NOT NULL DEFAULT '',
		new_user_callback_url TEXT NOT NULL DEFAULT '',
		error_callback_url    TEXT NOT NULL DEFAULT '',
		created_at            INTEGER NOT NULL,
		expires_at            INTEGER NOT NULL
	)`,
}

func (d *DB) migrate() error {
	for _, stmt := range schema {
		if _, err := d.Exec(stmt); err != nil {
			return errors.Wrap(err, "[sqlite migrate]")
		}
	}
	return nil
}

// times are stored as unix milliseconds; 0 is the zero time
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
