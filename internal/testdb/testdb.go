// Package testdb opens migrated in-memory SQLite databases for tests.
package testdb

import (
	"context"
	"testing"

	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/infrastructure/persistence"
	"github.com/helixml/diffsum/internal/database"
)

// New returns a migrated in-memory database that is closed with the test.
func New(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:", nil)
	if err != nil {
		t.Fatalf("testdb.New: open database: %v", err)
	}
	if err := persistence.AutoMigrate(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// AuditStore returns a store over a fresh database that already holds
// records, saved in the order given.
func AuditStore(t *testing.T, records ...audit.Record) persistence.AuditStore {
	t.Helper()
	store := persistence.NewAuditStore(New(t))
	for _, r := range records {
		if _, err := store.Save(context.Background(), r); err != nil {
			t.Fatalf("testdb.AuditStore: save %s: %v", r.ID(), err)
		}
	}
	return store
}
