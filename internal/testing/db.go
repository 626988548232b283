// Package testing provides database helpers for tests.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/mpmeasure/internal/database"
)

// NewTestDB creates a migrated sample store database in a temporary
// directory. It is closed when the test ends.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "samples.db"),
		Profile: database.ProfileScratch,
		Name:    "samples_test",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// NewMemoryDB opens an in-memory database through the cgo sqlite3 driver
// and applies the schema. The pool is limited to one connection because
// every connection to :memory: sees its own database.
func NewMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(database.Schema); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	return db
}
