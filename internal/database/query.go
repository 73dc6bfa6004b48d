package database

import (
	"github.com/helixml/diffsum/domain/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Apply translates a query into WHERE, ORDER BY and LIMIT clauses.
func Apply(db *gorm.DB, q query.Query) *gorm.DB {
	db = where(db, q)
	for _, s := range q.Sorts() {
		db = db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: s.Column},
			Desc:   s.Direction == query.Descending,
		})
	}
	if q.Limit() > 0 {
		db = db.Limit(q.Limit())
	}
	return db
}

func where(db *gorm.DB, q query.Query) *gorm.DB {
	for _, f := range q.Filters() {
		db = db.Where(clause.Eq{Column: clause.Column{Name: f.Column}, Value: f.Value})
	}
	return db
}
