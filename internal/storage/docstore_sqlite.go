package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/userdoc"

	_ "modernc.org/sqlite"
)

const driverSQLite = "sqlite"

// SQLiteStore keeps documents as JSON blobs in a single table.
// Each save is one upsert statement, so readers see the old or new body only.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	o := buildOptions(opts)
	s := &SQLiteStore{db: db, clock: o.clock}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
  key TEXT PRIMARY KEY,
  body BLOB NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (*userdoc.Document, error) {
	if key == "" {
		return nil, apperr.Validation("empty key")
	}
	start := time.Now()
	doc, err := s.load(ctx, key)
	observe(driverSQLite, "load", start, err)
	return doc, err
}

func (s *SQLiteStore) load(ctx context.Context, key string) (*userdoc.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return userdoc.New(key, s.clock.Now()), nil
		}
		return nil, apperr.Storage("load "+key, err)
	}
	return decodeDocument(key, body)
}

func (s *SQLiteStore) Save(ctx context.Context, key string, doc *userdoc.Document) error {
	if key == "" {
		return apperr.Validation("empty key")
	}
	start := time.Now()
	err := s.save(ctx, key, doc)
	observe(driverSQLite, "save", start, err)
	return err
}

func (s *SQLiteStore) save(ctx context.Context, key string, doc *userdoc.Document) error {
	body, err := encodeDocument(key, doc)
	if err != nil {
		return apperr.Storage("encode "+key, err)
	}
	const stmt = `
INSERT INTO documents (key, body, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  body=excluded.body,
  updated_at=excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, stmt, key, body, s.clock.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return apperr.Storage("save "+key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
