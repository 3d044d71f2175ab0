package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skosovsky/toolsynth/pipeline"
)

// ErrPathNotFound is returned by SQLiteStore.Get for unknown IDs.
var ErrPathNotFound = errors.New("export: path not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS paths (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	tools      TEXT NOT NULL,
	turns      INTEGER NOT NULL,
	unresolved INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	record     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_paths_created_at ON paths(created_at);
`

// SQLiteStore keeps path records in a SQLite database, one row per path with the full
// record as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Write implements pipeline.Sink. Records are upserted by ID in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, records []pipeline.PathRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO paths (id, session_id, tools, turns, unresolved, created_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			tools = excluded.tools,
			turns = excluded.turns,
			unresolved = excluded.unresolved,
			created_at = excluded.created_at,
			record = excluded.record`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding path %s: %w", rec.ID, err)
		}
		unresolved := 0
		for _, t := range rec.Turns {
			if t.Unresolved != "" {
				unresolved++
			}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.SessionID,
			strings.Join(rec.Path().Tools(), " "),
			len(rec.Turns),
			unresolved,
			rec.CreatedAt.UnixMilli(),
			string(data),
		); err != nil {
			return fmt.Errorf("storing path %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the record with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (pipeline.PathRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM paths WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.PathRecord{}, ErrPathNotFound
	}
	if err != nil {
		return pipeline.PathRecord{}, err
	}
	var rec pipeline.PathRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return pipeline.PathRecord{}, fmt.Errorf("decoding path %s: %w", id, err)
	}
	return rec, nil
}

// Summary is one row of List.
type Summary struct {
	ID         string
	Tools      []string
	Turns      int
	Unresolved int
	CreatedAt  time.Time
}

// List returns summaries of stored paths, oldest first. limit <= 0 means all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT id, tools, turns, unresolved, created_at FROM paths ORDER BY created_at, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			sum   Summary
			tools string
			ms    int64
		)
		if err := rows.Scan(&sum.ID, &tools, &sum.Turns, &sum.Unresolved, &ms); err != nil {
			return nil, err
		}
		sum.Tools = strings.Fields(tools)
		sum.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Count returns the number of stored paths.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM paths`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ pipeline.Sink = (*SQLiteStore)(nil)
