package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/query"
	"github.com/helixml/diffsum/internal/database"
	"gorm.io/gorm"
)

// AuditStore implements audit.Store using GORM.
type AuditStore struct {
	database.Repository[audit.Record, AuditRecordModel]
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db database.Database) AuditStore {
	return AuditStore{
		Repository: database.NewRepository[audit.Record, AuditRecordModel](db, AuditMapper{}, "audit record"),
	}
}

// Save appends a record.
func (s AuditStore) Save(ctx context.Context, record audit.Record) (audit.Record, error) {
	if record.ID() == "" {
		return audit.Record{}, errors.New("save audit record: missing id")
	}
	return s.Create(ctx, record)
}

// Find returns records matching the options.
func (s AuditStore) Find(ctx context.Context, options ...query.Option) ([]audit.Record, error) {
	return s.Repository.Find(ctx, options...)
}

// Prune deletes all but the keep most recent records. A keep of zero or
// less disables pruning.
func (s AuditStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	return database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) (int64, error) {
		var total int64
		if err := tx.Model(&AuditRecordModel{}).Count(&total).Error; err != nil {
			return 0, fmt.Errorf("count audit records: %w", err)
		}
		if total <= int64(keep) {
			return 0, nil
		}

		newest := tx.Model(&AuditRecordModel{}).
			Select("id").
			Order("recorded_at DESC").
			Order("id DESC").
			Limit(keep)

		result := tx.Where("id NOT IN (?)", newest).Delete(&AuditRecordModel{})
		if result.Error != nil {
			return 0, fmt.Errorf("prune audit records: %w", result.Error)
		}
		return result.RowsAffected, nil
	})
}

var _ audit.Store = AuditStore{}
