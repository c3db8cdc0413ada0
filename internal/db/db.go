package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/trajectory.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB

	// clock supplies run timestamps; tests swap in a MockClock.
	clock timeutil.Clock
}

// OpenDB opens the SQLite database at path without touching the schema.
// Use this when migrations are managed separately (e.g. the migrate CLI).
// The pragmas ride on the DSN so they apply to every pooled connection.
func OpenDB(path string) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)&_pragma=foreign_keys(1)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the SQLite database at path and applies any pending
// migrations from the embedded migrations directory.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	fsys, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(fsys); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// getMigrationsFS returns the embedded migrations with the .sql files at
// the filesystem root, matching the layout MigrateUp expects.
func getMigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}
