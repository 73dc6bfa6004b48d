package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WithTransactionResult executes fn within a transaction, committing on
// success or rolling back on error, and returns fn's result.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var result T

	tx := db.Session(ctx).Begin()
	if tx.Error != nil {
		return result, fmt.Errorf("begin transaction: %w", tx.Error)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback().Error
		}
	}()

	result, err := fn(tx)
	if err != nil {
		return result, err
	}

	if err := tx.Commit().Error; err != nil {
		return result, fmt.Errorf("commit transaction: %w", err)
	}
	committed = true

	return result, nil
}
