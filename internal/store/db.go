// Package store implements the durable, transactional state store for the
// hive control plane. All entities from the domain package are persisted in a
// single sqlite database; writers across processes are serialised by the
// advisory file lock in lock.go.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver" // sqlite3 database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded sqlite build

	"github.com/hivectl/hive/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the sqlite connection and owns schema migration.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens (creating if necessary) the hive database at path, enables WAL
// and foreign keys, backs up any existing file, and applies pending
// migrations.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Writers are serialised by the file lock; one connection keeps
	// sqlite's own busy handling out of the picture.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, path: path}

	if existed {
		if err := db.backup(); err != nil {
			log.Warn(log.CatStore, "pre-migration backup failed", "error", err)
		}
	}

	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// backup copies the database file to <path>.bak before migrations run.
func (d *DB) backup() error {
	src, err := os.Open(d.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(d.path+".bak", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// migrate applies the embedded numbered migrations in order, advancing the
// stored schema version. Each migration is idempotent under golang-migrate's
// version tracking.
func (d *DB) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migration source: %w", err)
	}

	driver := newMigrationDriver(d.conn)
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, _, _ := driver.Version()
	log.Debug(log.CatStore, "schema up to date", "version", version)
	return nil
}

// Conn exposes the underlying connection for repositories and tests.
func (d *DB) Conn() *sql.DB { return d.conn }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the database connection.
func (d *DB) Close() error { return d.conn.Close() }
