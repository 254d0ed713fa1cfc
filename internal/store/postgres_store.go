/**
 * @description
 * PostgreSQL implementation of DocumentStore. Each document is a JSONB row keyed by
 * its full path, which lets the back office run against Postgres in environments
 * without Firestore (staging replicas, on-prem deployments).
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 *
 * @notes
 * - Merge writes read the row FOR UPDATE and merge in Go with MergeFields so nested
 *   maps behave exactly as they do on Firestore.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);
`

// PostgresStore stores documents in a single JSONB table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, documentsSchema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, path string) (*Document, error) {
	_, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRow(ctx, "SELECT data FROM documents WHERE path = $1", path).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := decodeData(raw)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Path: path, Data: data}, nil
}

func (s *PostgresStore) GetAll(ctx context.Context, paths []string) ([]*Document, error) {
	out := make([]*Document, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, "SELECT path, doc_id, data FROM documents WHERE path = ANY($1)", paths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[string]*Document{}
	for rows.Next() {
		var path, id string
		var raw []byte
		if err := rows.Scan(&path, &id, &raw); err != nil {
			return nil, err
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, err
		}
		found[path] = &Document{ID: id, Path: path, Data: data}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, path := range paths {
		out[i] = found[path]
	}
	return out, nil
}

func (s *PostgresStore) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	return s.Commit(ctx, []Write{{Path: path, Fields: fields, Merge: true}})
}

func (s *PostgresStore) Commit(ctx context.Context, writes []Write) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, w := range writes {
		collection, id, err := SplitPath(w.Path)
		if err != nil {
			return err
		}
		data := w.Fields
		if w.Merge {
			var raw []byte
			err := tx.QueryRow(ctx, "SELECT data FROM documents WHERE path = $1 FOR UPDATE", w.Path).Scan(&raw)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				data = MergeFields(nil, w.Fields)
			case err != nil:
				return err
			default:
				existing, err := decodeData(raw)
				if err != nil {
					return err
				}
				data = MergeFields(existing, w.Fields)
			}
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.Path, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO documents (path, collection, doc_id, data, updated_at)
			VALUES ($1, $2, $3, $4::jsonb, now())
			ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			w.Path, collection, id, string(encoded))
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) List(ctx context.Context, collection string, opts ListOptions) ([]*Document, error) {
	query := "SELECT path, doc_id, data FROM documents WHERE collection = $1"
	args := []any{collection}
	if opts.WhereField != "" {
		filter, err := json.Marshal(map[string]any{opts.WhereField: opts.WhereValue})
		if err != nil {
			return nil, err
		}
		args = append(args, string(filter))
		query += fmt.Sprintf(" AND data @> $%d::jsonb", len(args))
	}
	if opts.OrderBy != "" {
		args = append(args, opts.OrderBy)
		n := len(args)
		query += fmt.Sprintf(" AND data ? $%d ORDER BY data->$%d", n, n)
		if opts.Descending {
			query += " DESC"
		}
	} else {
		query += " ORDER BY doc_id"
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		var path, id string
		var raw []byte
		if err := rows.Scan(&path, &id, &raw); err != nil {
			return nil, err
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &Document{ID: id, Path: path, Data: data})
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}
