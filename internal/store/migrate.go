package store

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4/database"
)

// migrationDriver adapts our sqlite connection to golang-migrate's
// database.Driver. The stock sqlite drivers each pin their own sqlite
// implementation; this one rides the ncruces connection the store already
// holds. Locking is a no-op because migrations only run at startup under the
// workspace file lock.
type migrationDriver struct {
	db *sql.DB
}

var _ database.Driver = (*migrationDriver)(nil)

func newMigrationDriver(db *sql.DB) *migrationDriver {
	return &migrationDriver{db: db}
}

func (m *migrationDriver) Open(string) (database.Driver, error) {
	return m, nil
}

func (m *migrationDriver) Close() error { return nil }

func (m *migrationDriver) Lock() error { return nil }

func (m *migrationDriver) Unlock() error { return nil }

func (m *migrationDriver) Run(migration io.Reader) error {
	stmts, err := io.ReadAll(migration)
	if err != nil {
		return fmt.Errorf("reading migration: %w", err)
	}
	if _, err := m.db.Exec(string(stmts)); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (m *migrationDriver) SetVersion(version int, dirty bool) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty INTEGER NOT NULL)`); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations`); err != nil {
		_ = tx.Rollback()
		return err
	}
	if version >= 0 {
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (m *migrationDriver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := m.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	switch {
	case err == sql.ErrNoRows:
		return database.NilVersion, false, nil
	case err != nil:
		// Table missing on a fresh database.
		return database.NilVersion, false, nil
	}
	return version, dirty, nil
}

func (m *migrationDriver) Drop() error {
	rows, err := m.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, table := range tables {
		if _, err := m.db.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
			return err
		}
	}
	return nil
}
