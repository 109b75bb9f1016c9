package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps documents as JSON blobs in the records table, one bucket
// per document kind ("projects", "jobs"). The *sql.DB is shared between
// buckets; callers own its lifecycle.
type SQLiteStore struct {
	db     *sql.DB
	bucket string
}

func NewSQLiteStore(db *sql.DB, bucket string) *SQLiteStore {
	return &SQLiteStore{db: db, bucket: bucket}
}

func (s *SQLiteStore) SaveRaw(ctx context.Context, id string, data map[string]any) error {
	if err := validID(id); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records(bucket, id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		s.bucket, id, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", s.bucket, id, err)
	}
	return nil
}

func (s *SQLiteStore) LoadRaw(ctx context.Context, id string) (map[string]any, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE bucket=? AND id=?`, s.bucket, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", s.bucket, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", s.bucket, id, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", s.bucket, id, err)
	}
	return data, nil
}

func (s *SQLiteStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE bucket=? ORDER BY id`, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.bucket, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
