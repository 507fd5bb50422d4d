package database

import "errors"

var (
	// ErrNoPath is returned by Open when Config.Path is empty.
	ErrNoPath = errors.New("database path is required")

	// ErrMigrationNotFound means an applied version has no file to roll back with.
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrNoDownMigration means the latest migration cannot be rolled back.
	ErrNoDownMigration = errors.New("migration has no down SQL")
)
