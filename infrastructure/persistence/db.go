// Package persistence provides database storage implementations.
package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/diffsum/internal/database"
)

// AutoMigrate runs GORM auto migration for all models.
func AutoMigrate(ctx context.Context, db database.Database) error {
	if err := db.Session(ctx).AutoMigrate(&AuditRecordModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
