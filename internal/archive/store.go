// Package archive is the local spill journal for conversation logs that
// could not reach the history collaborator. Entries are retried in the
// background and deleted once the collaborator accepts them.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one journaled conversation payload awaiting delivery.
type Entry struct {
	ID        string
	SessionID string
	Payload   []byte
	CreatedAt time.Time
}

// Store persists journal entries in a local SQLite file. All writes are
// funneled through a single goroutine; SQLite tolerates concurrent reads
// but not concurrent writers.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_created_at ON journal(created_at);
`

// NewStore opens (or creates) the journal database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				log.Printf("Archive write failed, retrying: %v", err)
				time.Sleep(time.Second)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("Archive write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("archive store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("archive write timeout")
	case <-s.shutdown:
		return fmt.Errorf("archive store is shutting down")
	}
}

// Journal stores one conversation payload for later delivery.
func (s *Store) Journal(ctx context.Context, sessionID string, payload []byte) error {
	id := uuid.New().String()
	createdAt := time.Now().UTC()

	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO journal (id, session_id, payload, created_at)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, id, sessionID, string(payload), createdAt)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
		return nil
	})
}

// Pending returns up to limit undelivered entries, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, session_id, payload, created_at
		FROM journal
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payload string
		if err := rows.Scan(&entry.ID, &entry.SessionID, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		entry.Payload = []byte(payload)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	return entries, nil
}

// Delete removes a delivered entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM journal WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete journal entry: %w", err)
		}
		return nil
	})
}

// Close shuts down the store and the write loop.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive database: %w", err)
	}
	return nil
}
