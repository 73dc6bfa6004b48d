// Package query describes store lookups independently of the storage engine.
package query

// Direction is a sort direction.
type Direction int

// Sort directions.
const (
	Ascending Direction = iota
	Descending
)

// Filter matches rows whose column equals Value.
type Filter struct {
	Column string
	Value  any
}

// Sort orders rows by Column.
type Sort struct {
	Column    string
	Direction Direction
}

// Query is a lookup: equality filters, sort keys in priority order, and an
// optional row limit.
type Query struct {
	filters []Filter
	sorts   []Sort
	limit   int
}

// Option adds to a Query under construction.
type Option func(*Query)

// New builds a Query from options applied in order.
func New(options ...Option) Query {
	var q Query
	for _, opt := range options {
		opt(&q)
	}
	return q
}

// Filters returns a copy of the equality filters.
func (q Query) Filters() []Filter { return append([]Filter(nil), q.filters...) }

// Sorts returns a copy of the sort keys.
func (q Query) Sorts() []Sort { return append([]Sort(nil), q.sorts...) }

// Limit returns the row limit, 0 for none.
func (q Query) Limit() int { return q.limit }

// Equal keeps rows whose column equals value.
func Equal(column string, value any) Option {
	return func(q *Query) {
		q.filters = append(q.filters, Filter{Column: column, Value: value})
	}
}

// OrderBy appends a sort key.
func OrderBy(column string, dir Direction) Option {
	return func(q *Query) {
		q.sorts = append(q.sorts, Sort{Column: column, Direction: dir})
	}
}

// WithLimit caps the number of rows. The last limit applied wins.
func WithLimit(n int) Option {
	return func(q *Query) {
		q.limit = n
	}
}

// Chain combines options into one.
func Chain(options ...Option) Option {
	return func(q *Query) {
		for _, opt := range options {
			opt(q)
		}
	}
}
