// Package store persists the alias to email directory in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when no record exists for an alias.
	ErrNotFound = errors.New("alias not found")

	// ErrEmailTaken is returned when the email is already stored under a
	// different alias.
	ErrEmailTaken = errors.New("email already saved under another alias")
)

// Record is one alias to email mapping.
type Record struct {
	Alias string
	Email string
}

// Store is a SQLite-backed alias directory. Aliases are compared
// case-insensitively and stored lower-cased; emails are unique.
type Store struct {
	db *sql.DB
}

// Open opens the database at path. An empty path opens a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" || trimmed == ":memory:" {
		trimmed = ":memory:"
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the alias table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS emails (
            alias TEXT PRIMARY KEY COLLATE NOCASE,
            email TEXT NOT NULL UNIQUE COLLATE NOCASE
        );`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Get returns the record for alias, or ErrNotFound.
func (s *Store) Get(ctx context.Context, alias string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT alias, email FROM emails WHERE alias = ? COLLATE NOCASE;`,
		normalizeAlias(alias),
	).Scan(&rec.Alias, &rec.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get alias: %w", err)
	}
	return rec, nil
}

// All returns every record ordered case-insensitively by alias.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	return queryAll(ctx, s.db)
}

// Upsert saves alias -> email, overwriting any existing email for alias.
// It returns ErrEmailTaken if email belongs to another alias.
func (s *Store) Upsert(ctx context.Context, alias, email string) error {
	return upsert(ctx, s.db, alias, email)
}

// Delete removes alias. It reports whether a record was removed.
func (s *Store) Delete(ctx context.Context, alias string) (bool, error) {
	return deleteAlias(ctx, s.db, alias)
}

// Tx is a store transaction. It exposes the same operations as Store.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// All returns every record visible to the transaction.
func (t *Tx) All(ctx context.Context) ([]Record, error) {
	return queryAll(ctx, t.tx)
}

// Upsert saves alias -> email within the transaction.
func (t *Tx) Upsert(ctx context.Context, alias, email string) error {
	return upsert(ctx, t.tx, alias, email)
}

// Delete removes alias within the transaction.
func (t *Tx) Delete(ctx context.Context, alias string) (bool, error) {
	return deleteAlias(ctx, t.tx, alias)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryAll(ctx context.Context, q querier) ([]Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT alias, email FROM emails ORDER BY alias COLLATE NOCASE ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Alias, &rec.Email); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return records, nil
}

func upsert(ctx context.Context, q querier, alias, email string) error {
	alias = normalizeAlias(alias)
	email = strings.TrimSpace(email)
	if alias == "" || email == "" {
		return fmt.Errorf("upsert alias: alias and email are required")
	}
	_, err := q.ExecContext(ctx, `INSERT INTO emails (alias, email) VALUES (?, ?)
        ON CONFLICT(alias) DO UPDATE SET email = excluded.email;`, alias, email)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("upsert alias: %w", err)
	}
	return nil
}

func deleteAlias(ctx context.Context, q querier, alias string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM emails WHERE alias = ? COLLATE NOCASE;`, normalizeAlias(alias))
	if err != nil {
		return false, fmt.Errorf("delete alias: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete alias: %w", err)
	}
	return n > 0, nil
}

func normalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
