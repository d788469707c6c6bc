package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction tells who authored a turn.
type Direction string

const (
	// Incoming turns were written by the sender.
	Incoming Direction = "incoming"
	// Outgoing turns were written by the assistant.
	Outgoing Direction = "outgoing"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Incoming || d == Outgoing
}

// Entry is one stored turn.
type Entry struct {
	ID        int64
	Sender    string
	Text      string
	Direction Direction
	Timestamp time.Time
}

// ErrInvalidDirection is returned by Append for an unknown direction.
var ErrInvalidDirection = errors.New("invalid message direction")

// Store is the SQLite-backed conversation log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var gooseMu sync.Mutex

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// goose keeps its configuration in package globals.
func migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection. It backs the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append records one turn stamped with the current time.
func (s *Store) Append(ctx context.Context, sender, text string, direction Direction) error {
	if !direction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (sender_number, message_text, direction, timestamp) VALUES (?, ?, ?, ?)`,
		sender, text, string(direction), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Read returns up to limit turns of sender, most recent first.
// A non-positive limit returns nothing.
func (s *Store) Read(ctx context.Context, sender string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_number, message_text, direction, timestamp
		   FROM conversations
		  WHERE sender_number = ?
		  ORDER BY id DESC
		  LIMIT ?`, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			direction string
			millis    int64
		)
		if err := rows.Scan(&e.ID, &e.Sender, &e.Text, &direction, &millis); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Direction = Direction(direction)
		e.Timestamp = time.UnixMilli(millis)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// Prune deletes all turns older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE timestamp < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// Senders returns every sender with stored history, most recently active first.
func (s *Store) Senders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_number FROM conversations GROUP BY sender_number ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list senders: %w", err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var sender string
		if err := rows.Scan(&sender); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, sender)
	}
	return senders, rows.Err()
}
