package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/paths"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every typed operation
// works inside and outside a transaction.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Queries bundles the typed per-entity operations. Obtain one from a Store
// (reads, lock-free) or inside WithTransaction (writes).
type Queries struct {
	db dbtx
}

// Store is the durable state store: one sqlite database plus the
// cross-process write lock.
type Store struct {
	*Queries
	db   *DB
	lock *FileLock
}

// Open opens the store for a hive directory, running migrations if needed.
func Open(hiveDir string) (*Store, error) {
	db, err := NewDB(paths.DB(hiveDir))
	if err != nil {
		return nil, err
	}
	return &Store{
		Queries: &Queries{db: db.Conn()},
		db:      db,
		lock:    NewFileLock(paths.Lock(hiveDir)),
	}, nil
}

// NewWithDB wraps an already-open database. lock may be nil (tests,
// single-process tools); WithTransaction then skips lock acquisition.
func NewWithDB(db *DB, lock *FileLock) *Store {
	return &Store{
		Queries: &Queries{db: db.Conn()},
		db:      db,
		lock:    lock,
	}
}

// DB exposes the underlying database handle.
func (s *Store) DB() *DB { return s.db }

// Lock exposes the write-lock handle (used by the orphan cleaner).
func (s *Store) Lock() *FileLock { return s.lock }

// Close releases the lock if held and closes the database.
func (s *Store) Close() error {
	if s.lock != nil {
		s.lock.Release()
	}
	return s.db.Close()
}

// WithTransaction runs fn inside a write transaction under the cross-process
// lock. The transaction commits when fn returns nil and rolls back on error.
// Long-running external I/O must happen outside this scope; keep lock
// holding times short.
func (s *Store) WithTransaction(fn func(q *Queries) error) error {
	if s.lock != nil {
		if err := s.lock.Acquire(); err != nil {
			return err
		}
		defer s.lock.Release()
	}

	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&Queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// now returns the current Unix timestamp. Kept in one place so tests can
// reason about stored times.
func now() int64 { return time.Now().UTC().Unix() }

// mapConstraintErr translates sqlite constraint failures into domain error
// kinds so callers can classify with errors.Is.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	default:
		return err
	}
}
