package database

import (
	"context"
	"fmt"

	"github.com/helixml/diffsum/domain/query"
	"gorm.io/gorm"
)

// EntityMapper converts between a domain type and its table model.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) D
	ToModel(domain D) E
}

// Repository stores domain values of type D as rows of model E.
type Repository[D any, E any] struct {
	db     Database
	mapper EntityMapper[D, E]
	label  string
}

// NewRepository creates a Repository. label names the entity in errors.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{db: db, mapper: mapper, label: label}
}

func (r Repository[D, E]) table(ctx context.Context) *gorm.DB {
	return r.db.Session(ctx).Model(new(E))
}

// Create inserts value and returns it as stored.
func (r Repository[D, E]) Create(ctx context.Context, value D) (D, error) {
	row := r.mapper.ToModel(value)
	if err := r.db.Session(ctx).Create(&row).Error; err != nil {
		var zero D
		return zero, fmt.Errorf("create %s: %w", r.label, err)
	}
	return r.mapper.ToDomain(row), nil
}

// Find returns the values matching options.
func (r Repository[D, E]) Find(ctx context.Context, options ...query.Option) ([]D, error) {
	var rows []E
	if err := Apply(r.table(ctx), query.New(options...)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}

	values := make([]D, len(rows))
	for i, row := range rows {
		values[i] = r.mapper.ToDomain(row)
	}
	return values, nil
}

// Count returns how many rows match the filters in options. Sorting and
// limits are ignored.
func (r Repository[D, E]) Count(ctx context.Context, options ...query.Option) (int64, error) {
	var n int64
	if err := where(r.table(ctx), query.New(options...)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return n, nil
}

// Database returns the underlying database.
func (r Repository[D, E]) Database() Database {
	return r.db
}
