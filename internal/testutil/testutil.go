// Package testutil provides shared test helpers for setting up workareas and ledgers.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/arnvik/raido/internal/ledger"
	"github.com/arnvik/raido/internal/storage"
)

// TestDB creates a temporary ledger database that is automatically cleaned up.
func TestDB(t *testing.T) *ledger.DB {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "raido-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkarea creates a temporary workarea directory with a storage.FS.
func TestWorkarea(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
