package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"marketdesk/internal/model"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// SQLiteStore implements hub.SessionStore backed by a local SQLite database.
// The bearer token is the only thing persisted.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode so the CLI can read the session while the console runs.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS session (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	email        TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL,
	token_type   TEXT NOT NULL DEFAULT 'Bearer',
	expiry_unix  INTEGER NOT NULL DEFAULT 0,
	saved_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	_, err := db.Exec(`
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(schemaVersion))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession replaces the stored token.
func (s *SQLiteStore) SaveSession(ctx context.Context, creds model.Credentials) error {
	if creds.AccessToken == "" {
		return model.ErrMissingToken
	}
	var exp int64
	if !creds.Expiry.IsZero() {
		exp = creds.Expiry.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, email, access_token, token_type, expiry_unix, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email        = excluded.email,
			access_token = excluded.access_token,
			token_type   = excluded.token_type,
			expiry_unix  = excluded.expiry_unix,
			saved_at     = excluded.saved_at
	`, creds.Email, creds.AccessToken, creds.Token().TokenType, exp, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored token. ok is false when nobody is logged in.
func (s *SQLiteStore) LoadSession(ctx context.Context) (creds model.Credentials, ok bool, err error) {
	var exp int64
	err = s.db.QueryRowContext(ctx,
		"SELECT email, access_token, token_type, expiry_unix FROM session WHERE id = 1").
		Scan(&creds.Email, &creds.AccessToken, &creds.TokenType, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credentials{}, false, nil
	}
	if err != nil {
		return model.Credentials{}, false, fmt.Errorf("load session: %w", err)
	}
	if exp != 0 {
		creds.Expiry = time.Unix(exp, 0)
	}
	return creds, true, nil
}

// ClearSession forgets the stored token. Clearing an empty store is not an error.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session"); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SchemaVersion reports the migration level recorded in the metadata table.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&val)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}
