package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable InstanceStore backed by a single SQLite file.
// A single connection is used; the engine serializes writes per instance, so
// contention stays low.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the instance database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps snapshot writes from stalling concurrent reads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS instances (
		instance_id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		status      TEXT NOT NULL,
		seed        INTEGER NOT NULL,
		turn        INTEGER NOT NULL,
		players     TEXT NOT NULL,
		snapshot    BLOB,
		fail_reason TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);`)
	return err
}

// Save implements InstanceStore.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `INSERT INTO instances
		(instance_id, template_id, status, seed, turn, players, snapshot, fail_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			status = excluded.status,
			turn = excluded.turn,
			players = excluded.players,
			snapshot = excluded.snapshot,
			fail_reason = excluded.fail_reason,
			updated_at = excluded.updated_at`,
		rec.InstanceID, rec.TemplateID, rec.Status, rec.Seed, rec.Turn,
		string(players), rec.Snapshot, rec.FailReason,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// Load implements InstanceStore.
func (s *SQLiteStore) Load(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT instance_id, template_id, status, seed,
		turn, players, snapshot, fail_reason, created_at, updated_at
		FROM instances WHERE instance_id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// ListActive implements InstanceStore.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instance_id, template_id, status, seed,
		turn, players, snapshot, fail_reason, created_at, updated_at
		FROM instances WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkInactive implements InstanceStore.
func (s *SQLiteStore) MarkInactive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances SET status = 'stopped', updated_at = ? WHERE instance_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements InstanceStore.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE instance_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements InstanceStore.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		players   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.InstanceID, &rec.TemplateID, &rec.Status, &rec.Seed,
		&rec.Turn, &players, &rec.Snapshot, &rec.FailReason, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	if players != "" && players != "null" {
		if err := json.Unmarshal([]byte(players), &rec.Players); err != nil {
			return Record{}, fmt.Errorf("store: corrupt players column for %s: %w", rec.InstanceID, err)
		}
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}
