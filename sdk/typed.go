package sdk

import "context"

// Table binds a table name to a row type so reads and writes need no
// destination arguments or type assertions.
//
// Example:
//
//	type Todo struct {
//	    ID        string    `json:"id,omitempty"`
//	    Title     string    `json:"title"`
//	    Done      bool      `json:"done"`
//	    CreatedAt time.Time `json:"created_at,omitempty"`
//	}
//
//	todos := sdk.NewTable[Todo](client.Database(), "todos")
//
//	created, err := todos.InsertOne(ctx, Todo{Title: "write docs"})
//
//	open, err := todos.Select(ctx, func(q sdk.Query) sdk.Query {
//	    return q.Eq("done", false).Order("created_at", false).Limit(20)
//	})
type Table[T any] struct {
	db   *Database
	name string
}

// NewTable creates a typed handle on table name.
func NewTable[T any](db *Database, name string) *Table[T] {
	return &Table[T]{db: db, name: name}
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// Query returns a fresh query on the table.
func (t *Table[T]) Query() Query {
	return t.db.From(t.name)
}

func (t *Table[T]) scoped(build func(Query) Query) Query {
	q := t.Query()
	if build != nil {
		q = build(q)
	}
	return q
}

// Select returns the rows matching the query built by build; a nil build
// returns every row.
func (t *Table[T]) Select(ctx context.Context, build func(Query) Query) ([]T, error) {
	return Select[T](ctx, t.scoped(build))
}

// Insert stores rows and returns them as stored.
func (t *Table[T]) Insert(ctx context.Context, rows ...T) ([]T, error) {
	if rows == nil {
		rows = []T{}
	}
	return InsertRows[T](ctx, t.Query(), rows)
}

// InsertOne stores a single row and returns it as stored.
func (t *Table[T]) InsertOne(ctx context.Context, row T) (T, error) {
	return InsertRow[T](ctx, t.Query(), row)
}

// Update applies patch to the rows selected by filter and returns them.
// A nil filter updates every row.
func (t *Table[T]) Update(ctx context.Context, patch interface{}, filter func(Query) Query) ([]T, error) {
	return UpdateRows[T](ctx, t.scoped(filter), patch)
}

// Delete removes the rows selected by filter. A nil filter deletes every row.
func (t *Table[T]) Delete(ctx context.Context, filter func(Query) Query) error {
	return t.scoped(filter).Delete(ctx)
}
