package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	embeddedmigrations "github.com/solatis/intervalq/migrations"
)

/*
 * Schema migrations for the mapping store.
 *
 * Migration files are embedded per driver and applied in filename order,
 * each in its own transaction together with its schema_migrations row.
 * The row keeps the file's SHA-256: an applied file whose content changed,
 * or a recorded file that is no longer embedded, stops MigrateUp before
 * anything runs.
 */

const createTrackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// MigrationStatus reports one embedded migration file.
type MigrationStatus struct {
	Name      string
	AppliedAt *time.Time // nil while pending
}

// Pending reports whether the migration has not been applied yet.
func (s MigrationStatus) Pending() bool { return s.AppliedAt == nil }

// schemaFile is one embedded migration.
type schemaFile struct {
	name     string
	checksum string
	sql      string
}

// appliedRow is one schema_migrations row.
type appliedRow struct {
	Name      string `db:"name"`
	Checksum  string `db:"checksum"`
	AppliedAt string `db:"applied_at"`
}

// MigrateUp applies the pending migrations for db's driver.
func MigrateUp(db *sqlx.DB) error {
	files, applied, err := plan(db)
	if err != nil {
		return err
	}
	if err := verify(files, applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	for _, f := range files {
		if _, done := applied[f.name]; done {
			continue
		}
		if err := apply(db, f); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", f.name, err)
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration in apply order.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	files, applied, err := plan(db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, len(files))
	for i, f := range files {
		statuses[i].Name = f.name
		row, ok := applied[f.name]
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339, row.AppliedAt)
		if err != nil {
			return nil, fmt.Errorf("migration %s has malformed applied_at %q", f.name, row.AppliedAt)
		}
		statuses[i].AppliedAt = &at
	}
	return statuses, nil
}

// CheckCurrent fails when any embedded migration is still pending.
func CheckCurrent(db *sqlx.DB) error {
	statuses, err := MigrateStatus(db)
	if err != nil {
		return err
	}
	var pending []string
	for _, s := range statuses {
		if s.Pending() {
			pending = append(pending, s.Name)
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("migrations not applied: %s - run 'intervalq migrate' first", strings.Join(pending, ", "))
	}
	return nil
}

// plan loads the embedded files for db's driver and the rows recorded so far.
func plan(db *sqlx.DB) ([]schemaFile, map[string]appliedRow, error) {
	files, err := schemaFiles(db.DriverName())
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Exec(createTrackingTable); err != nil {
		return nil, nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var rows []appliedRow
	if err := db.Select(&rows, "SELECT name, checksum, applied_at FROM schema_migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[string]appliedRow, len(rows))
	for _, r := range rows {
		applied[r.Name] = r
	}
	return files, applied, nil
}

// schemaFiles reads the embedded migrations of a sqlx driver, sorted by name.
func schemaFiles(driver string) ([]schemaFile, error) {
	var fsys fs.FS
	switch driver {
	case "sqlite3":
		fsys = embeddedmigrations.SqliteMigrations
		driver = "sqlite"
	case "postgres":
		fsys = embeddedmigrations.PostgresMigrations
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	names, err := fs.Glob(fsys, driver+"/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	files := make([]schemaFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		files = append(files, schemaFile{
			name:     path.Base(name),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}
	return files, nil
}

// verify compares recorded checksums with the embedded files.
func verify(files []schemaFile, applied map[string]appliedRow) error {
	embedded := make(map[string]bool, len(files))
	for _, f := range files {
		embedded[f.name] = true
		if row, ok := applied[f.name]; ok && row.Checksum != f.checksum {
			return fmt.Errorf("checksum mismatch for migration %s: recorded %s, embedded %s", f.name, row.Checksum, f.checksum)
		}
	}

	var unknown []string
	for name := range applied {
		if !embedded[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("migrations recorded but not embedded: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// apply runs one file and records it in a single transaction.
func apply(db *sqlx.DB, f schemaFile) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op after Commit

	// lib/pq runs one statement per Exec.
	for _, stmt := range statements(f.sql) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}

	record := tx.Rebind("INSERT INTO schema_migrations (name, checksum, applied_at) VALUES (?, ?, ?)")
	if _, err := tx.Exec(record, f.name, f.checksum, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}
	return tx.Commit()
}

// statements splits a migration file on ";" after dropping full-line "--"
// comments.
func statements(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}

	var out []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
