// Package store keeps a history of solved circuits in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("solve record not found")

// Record is one solve request and what came of it.
type Record struct {
	ID        uuid.UUID
	Title     string
	Format    string
	Status    string
	Attempts  int
	Bases     int
	Cost      float64
	Duration  time.Duration
	Input     []byte
	Output    []byte
	Error     string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// New opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database alive and serialises writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS solves (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		bases INTEGER NOT NULL DEFAULT 0,
		cost REAL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		input BLOB,
		output BLOB,
		error TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_solves_created ON solves(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a record, filling in the id and creation time when unset.
func (s *Store) Save(ctx context.Context, r *Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solves (id, title, format, status, attempts, bases, cost, duration_ns, input, output, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID.String(), r.Title, r.Format, r.Status, r.Attempts, r.Bases, r.Cost,
		int64(r.Duration), r.Input, r.Output, errText, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert solve %s: %w", r.ID, err)
	}
	return nil
}

const recordColumns = `id, title, format, status, attempts, bases, cost, duration_ns, input, output, error, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r        Record
		id       string
		cost     sql.NullFloat64
		duration int64
		errText  sql.NullString
		created  int64
	)
	if err := sc.Scan(&id, &r.Title, &r.Format, &r.Status, &r.Attempts, &r.Bases, &cost,
		&duration, &r.Input, &r.Output, &errText, &created); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad solve id %q: %w", id, err)
	}
	r.ID = parsed
	r.Cost = cost.Float64
	r.Duration = time.Duration(duration)
	r.Error = errText.String
	r.CreatedAt = time.Unix(0, created)
	return &r, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM solves WHERE id = ?`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load solve %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM solves
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query solves: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan solve: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
