package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// PutAttachment inserts or replaces an attachment. A zero CreatedAt is
// set to now.
func (s *SQLiteStore) PutAttachment(ctx context.Context, att Attachment) error {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now()
	}
	att.CreatedAt = att.CreatedAt.UTC()
	att.Size = int64(len(att.Data))

	const query = `
		INSERT OR REPLACE INTO attachments (
			owner, uid, filename, content_type, size, data, created_at
		) VALUES (
			:owner, :uid, :filename, :content_type, :size, :data, :created_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, att); err != nil {
		return fmt.Errorf("storing attachment %s/%s: %w", att.UID, att.Filename, err)
	}

	return nil
}

// GetAttachment retrieves one attachment.
func (s *SQLiteStore) GetAttachment(
	ctx context.Context,
	owner, uid, filename string,
) (*Attachment, error) {
	var att Attachment
	err := s.db.GetContext(ctx, &att, `
		SELECT owner, uid, filename, content_type, size, data, created_at
		FROM attachments
		WHERE owner = ? AND uid = ? AND filename = ?`,
		owner, uid, filename,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attachment %s/%s: %w", uid, filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting attachment %s/%s: %w", uid, filename, err)
	}

	return &att, nil
}

// PurgeAttachments deletes attachments created before cutoff.
func (s *SQLiteStore) PurgeAttachments(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM attachments WHERE created_at < ?", cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging attachments: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged attachments: %w", err)
	}

	return n, nil
}
