package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteFilename = "embeddings.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);

CREATE TABLE IF NOT EXISTS embeddings (
    id TEXT PRIMARY KEY,
    model TEXT,
    dim INTEGER NOT NULL,
    vector BLOB NOT NULL,          -- little-endian float16
    updated_at INTEGER NOT NULL    -- unix nanoseconds
);
`

// sqlite caps bound parameters per statement.
const sqliteDeleteChunk = 500

var (
	_ Store     = (*SQLiteStore)(nil)
	_ MetaStore = (*SQLiteStore)(nil)
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(basePath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dsn := filepath.Join(basePath, sqliteFilename) + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`,
		MetaCreatedAt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stamp database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id PhotoID) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model, dim, vector, updated_at FROM embeddings WHERE id = ?`, string(id))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, dim, vector, updated_at FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if errors.Is(err, errCorruptRecord) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan embeddings: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]PhotoID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	defer rows.Close()

	var ids []PhotoID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}
		ids = append(ids, PhotoID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, model, dim, vector, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			dim = excluded.dim,
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
		string(rec.ID), rec.Model, rec.Vector.Dimension(), rec.Vector.Bytes(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, ids []PhotoID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(ids); start += sqliteDeleteChunk {
		chunk := ids[start:min(start+sqliteDeleteChunk, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = string(id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("delete embeddings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Sync(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpoint sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("read meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		id, model string
		dim       int
		blob      []byte
		updated   int64
	)
	if err := row.Scan(&id, &model, &dim, &blob, &updated); err != nil {
		return nil, err
	}

	vec, err := EmbeddingFromBytes(blob)
	if err != nil || len(vec) != dim {
		return nil, fmt.Errorf("%w: %s", errCorruptRecord, id)
	}

	return &Record{
		ID:        PhotoID(id),
		Vector:    vec,
		Model:     model,
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}
