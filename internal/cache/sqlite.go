package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "modernc.org/sqlite"
)

const createGenerationTables = `
CREATE TABLE IF NOT EXISTS generations (
	name TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	generation TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status INTEGER NOT NULL,
	header TEXT NOT NULL,
	body BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (generation, method, url)
);
`

// SQLite stores generations in a single database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// one writer keeps modernc from returning SQLITE_BUSY under concurrent puts
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createGenerationTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Open(ctx context.Context, name string) (Generation, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO generations (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("open generation %q: %w", name, err)
	}
	return &sqliteGeneration{db: s.db, name: name}, nil
}

func (s *SQLite) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup generation %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLite) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM generations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE generation = ?`, name); err != nil {
		return false, fmt.Errorf("delete generation entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteGeneration struct {
	db   *sql.DB
	name string
}

func (g *sqliteGeneration) Name() string { return g.name }

func (g *sqliteGeneration) Match(ctx context.Context, key Key) (Entry, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	err := g.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM entries WHERE generation = ? AND method = ? AND url = ?`,
		g.name, key.Method, key.URL,
	).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cache match: %w", err)
	}

	h := http.Header{}
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return Entry{}, fmt.Errorf("decode cached header: %w", err)
	}
	return Entry{
		Status:   status,
		Header:   h,
		Body:     body,
		StoredAt: time.Unix(0, storedAt).UTC(),
	}, nil
}

func (g *sqliteGeneration) Put(ctx context.Context, key Key, entry Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	_, err = g.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (generation, method, url, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.name, key.Method, key.URL, entry.Status, string(header), body, storedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (g *sqliteGeneration) Keys(ctx context.Context) ([]Key, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT method, url FROM entries WHERE generation = ? ORDER BY url, method`, g.name)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Method, &k.URL); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
