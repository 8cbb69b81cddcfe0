package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// Operator is a comparison operator of a row filter.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
	OpIs    Operator = "is"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIn, OpIs:
		return true
	}
	return false
}

// IsValue is the operand of an OpIs filter.
type IsValue string

const (
	IsNull  IsValue = "null"
	IsTrue  IsValue = "true"
	IsFalse IsValue = "false"
)

func (v IsValue) valid() bool {
	return v == IsNull || v == IsTrue || v == IsFalse
}

// Filter is one row predicate. Values is used by OpIn, IsValue by OpIs and
// Value by every other operator.
type Filter struct {
	Column   string
	Operator Operator
	Value    string
	Values   []string
	IsValue  IsValue
}

// encode renders the filter value as {op}.{operand}.
func (f Filter) encode() string {
	switch f.Operator {
	case OpIn:
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = quoteListItem(v)
		}
		return "in.(" + strings.Join(quoted, ",") + ")"
	case OpIs:
		return "is." + string(f.IsValue)
	default:
		return string(f.Operator) + "." + f.Value
	}
}

// quoteListItem wraps items that would break the list syntax in double
// quotes, escaping embedded quotes and backslashes.
func quoteListItem(s string) string {
	if s != "" && !strings.ContainsAny(s, ",()\"\\ \t\n\r") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// Order is one sort key. The first Order of a query is the primary one.
type Order struct {
	Column    string
	Ascending bool
}

func (o Order) encode() string {
	if o.Ascending {
		return o.Column + ".asc"
	}
	return o.Column + ".desc"
}

// Query is an immutable description of a table request. Every chain method
// returns a new Query and leaves the receiver untouched, so a partially
// built query can be shared and extended from several goroutines.
//
// Builder mistakes such as an inverted Range or an empty In list are kept
// in the query and returned by the terminal call before any network I/O.
//
// Example:
//
//	var todos []Todo
//	err := client.Database().From("todos").
//	    Select("id", "title", "done").
//	    Eq("owner", userID).
//	    Is("deleted_at", sdk.IsNull).
//	    Order("created_at", false).
//	    Range(0, 19).
//	    Execute(ctx, &todos)
type Query struct {
	db      *Database
	table   string
	columns string
	filters []Filter
	orders  []Order
	limit   *int
	offset  *int
	err     error
}

func (q Query) clone() Query {
	out := q
	out.filters = append([]Filter(nil), q.filters...)
	out.orders = append([]Order(nil), q.orders...)
	return out
}

func (q Query) withErr(err error) Query {
	out := q.clone()
	if out.err == nil {
		out.err = err
	}
	return out
}

// Table returns the table the query targets.
func (q Query) Table() string { return q.table }

// Err returns the first builder error recorded so far.
func (q Query) Err() error { return q.err }

// Filters returns a copy of the filters in insertion order.
func (q Query) Filters() []Filter { return append([]Filter(nil), q.filters...) }

// Select sets the projected columns. No columns selects "*".
func (q Query) Select(columns ...string) Query {
	out := q.clone()
	if len(columns) == 0 {
		out.columns = "*"
		return out
	}
	out.columns = strings.Join(columns, ",")
	return out
}

// Eq adds column = value.
func (q Query) Eq(column string, value interface{}) Query { return q.Filter(column, OpEq, value) }

// Neq adds column <> value.
func (q Query) Neq(column string, value interface{}) Query { return q.Filter(column, OpNeq, value) }

// Gt adds column > value.
func (q Query) Gt(column string, value interface{}) Query { return q.Filter(column, OpGt, value) }

// Gte adds column >= value.
func (q Query) Gte(column string, value interface{}) Query { return q.Filter(column, OpGte, value) }

// Lt adds column < value.
func (q Query) Lt(column string, value interface{}) Query { return q.Filter(column, OpLt, value) }

// Lte adds column <= value.
func (q Query) Lte(column string, value interface{}) Query { return q.Filter(column, OpLte, value) }

// Like adds a case-sensitive pattern match; '%' is the wildcard.
func (q Query) Like(column, pattern string) Query { return q.Filter(column, OpLike, pattern) }

// ILike adds a case-insensitive pattern match.
func (q Query) ILike(column, pattern string) Query { return q.Filter(column, OpILike, pattern) }

// In adds a membership test. An empty list is a builder error.
func (q Query) In(column string, values ...interface{}) Query {
	if column == "" {
		return q.withErr(fmt.Errorf("%w: empty column name", ErrInvalidFilter))
	}
	if len(values) == 0 {
		return q.withErr(fmt.Errorf("%w: in-list for %q is empty", ErrInvalidFilter, column))
	}
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = formatValue(v)
	}
	out := q.clone()
	out.filters = append(out.filters, Filter{Column: column, Operator: OpIn, Values: items})
	return out
}

// Is adds an IS NULL / IS TRUE / IS FALSE test.
func (q Query) Is(column string, value IsValue) Query {
	if column == "" {
		return q.withErr(fmt.Errorf("%w: empty column name", ErrInvalidFilter))
	}
	if !value.valid() {
		return q.withErr(fmt.Errorf("%w: is.%s", ErrInvalidFilter, value))
	}
	out := q.clone()
	out.filters = append(out.filters, Filter{Column: column, Operator: OpIs, IsValue: value})
	return out
}

// Filter adds a filter with an explicit operator. For OpIn, value must be a
// slice or array; for OpIs it must be an IsValue, a bool or nil.
func (q Query) Filter(column string, op Operator, value interface{}) Query {
	if column == "" {
		return q.withErr(fmt.Errorf("%w: empty column name", ErrInvalidFilter))
	}
	switch op {
	case OpIn:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return q.withErr(fmt.Errorf("%w: in-filter on %q needs a list", ErrInvalidFilter, column))
		}
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return q.In(column, items...)
	case OpIs:
		switch v := value.(type) {
		case nil:
			return q.Is(column, IsNull)
		case bool:
			if v {
				return q.Is(column, IsTrue)
			}
			return q.Is(column, IsFalse)
		case IsValue:
			return q.Is(column, v)
		default:
			return q.withErr(fmt.Errorf("%w: is-filter on %q takes null, true or false", ErrInvalidFilter, column))
		}
	}
	if !op.Valid() {
		return q.withErr(fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op))
	}
	out := q.clone()
	out.filters = append(out.filters, Filter{Column: column, Operator: op, Value: formatValue(value)})
	return out
}

// Order appends a sort key. Repeated calls compose: the first is primary.
func (q Query) Order(column string, ascending bool) Query {
	if column == "" {
		return q.withErr(fmt.Errorf("%w: empty order column", ErrInvalidInput))
	}
	out := q.clone()
	out.orders = append(out.orders, Order{Column: column, Ascending: ascending})
	return out
}

// Limit caps the number of returned rows.
func (q Query) Limit(n int) Query {
	if n < 0 {
		return q.withErr(fmt.Errorf("%w: negative limit %d", ErrInvalidRange, n))
	}
	out := q.clone()
	out.limit = &n
	return out
}

// Offset skips the first n rows.
func (q Query) Offset(n int) Query {
	if n < 0 {
		return q.withErr(fmt.Errorf("%w: negative offset %d", ErrInvalidRange, n))
	}
	out := q.clone()
	out.offset = &n
	return out
}

// Range selects rows from..to inclusive, replacing any Limit and Offset.
func (q Query) Range(from, to int) Query {
	if from < 0 || to < from {
		return q.withErr(fmt.Errorf("%w: range(%d, %d)", ErrInvalidRange, from, to))
	}
	out := q.clone()
	limit := to - from + 1
	out.offset = &from
	out.limit = &limit
	return out
}

type queryParam struct {
	key, value string
}

func (q Query) params(readOnly bool) []queryParam {
	var out []queryParam
	if readOnly {
		columns := q.columns
		if columns == "" {
			columns = "*"
		}
		out = append(out, queryParam{"select", columns})
	}
	for _, f := range q.filters {
		out = append(out, queryParam{f.Column, f.encode()})
	}
	if !readOnly {
		return out
	}
	if len(q.orders) > 0 {
		keys := make([]string, len(q.orders))
		for i, o := range q.orders {
			keys[i] = o.encode()
		}
		out = append(out, queryParam{"order", strings.Join(keys, ",")})
	}
	if q.offset != nil {
		out = append(out, queryParam{"offset", strconv.Itoa(*q.offset)})
	}
	if q.limit != nil {
		out = append(out, queryParam{"limit", strconv.Itoa(*q.limit)})
	}
	return out
}

func joinParams(params []queryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQueryComponent(p.key))
		b.WriteByte('=')
		b.WriteString(escapeQueryComponent(p.value))
	}
	return b.String()
}

// Encode returns the query string of a read: select, filters in insertion
// order, order, offset, then limit.
//
// Example:
//
//	db.From("todos").Eq("done", false).Order("id", true).Range(5, 14).Encode()
//	// "select=*&done=eq.false&order=id.asc&offset=5&limit=10"
func (q Query) Encode() string {
	return joinParams(q.params(true))
}

// encodeFilters returns only the filter part, used by Update and Delete.
func (q Query) encodeFilters() string {
	return joinParams(q.params(false))
}

var readableQueryChars = strings.NewReplacer(
	"%28", "(",
	"%29", ")",
	"%2C", ",",
	"%3A", ":",
	"%2A", "*",
)

func escapeQueryComponent(s string) string {
	return readableQueryChars.Replace(url.QueryEscape(s))
}

// formatValue renders a filter operand.
func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return "null"
		}
		return x.Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func (q Query) path() string {
	return escapePath(recordsPath, q.table)
}

// Execute runs the query and decodes the matching rows into dest, which
// must point to a slice. No matching rows yields an empty slice.
func (q Query) Execute(ctx context.Context, dest interface{}) error {
	if err := q.ready(); err != nil {
		return err
	}
	return q.db.transport.call(ctx, request{
		Method: http.MethodGet,
		Path:   q.path(),
		Query:  q.Encode(),
	}, dest)
}

// Insert creates rows and decodes the stored rows, including server filled
// columns, into dest. records must be a slice or array. Filters, ordering
// and pagination are ignored.
func (q Query) Insert(ctx context.Context, records interface{}, dest interface{}) error {
	if err := q.ready(); err != nil {
		return err
	}
	rv := reflect.ValueOf(records)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("%w: insert takes a slice of records, got %T", ErrInvalidInput, records)
	}
	body, err := marshalJSON(records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return q.db.transport.call(ctx, request{
		Method: http.MethodPost,
		Path:   q.path(),
		Body:   body,
		Header: map[string]string{headerPrefer: preferRepresentation},
	}, dest)
}

// InsertOne creates a single row and decodes the stored row into dest.
// ErrEmptyResult is returned when the backend answers with no rows.
func (q Query) InsertOne(ctx context.Context, record interface{}, dest interface{}) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	}
	var rows []jsoniter.RawMessage
	if err := q.Insert(ctx, []interface{}{record}, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrEmptyResult
	}
	if dest == nil {
		return nil
	}
	return unmarshalJSON(rows[0], dest)
}

// Update applies patch to every row matching the filters and decodes the
// updated rows into dest; dest may be nil. Ordering, pagination and the
// selected columns are not sent. Without filters every row is updated.
func (q Query) Update(ctx context.Context, patch interface{}, dest interface{}) error {
	if err := q.ready(); err != nil {
		return err
	}
	if err := q.checkMutation(http.MethodPatch); err != nil {
		return err
	}
	body, err := marshalJSON(patch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return q.db.transport.call(ctx, request{
		Method: http.MethodPatch,
		Path:   q.path(),
		Query:  q.encodeFilters(),
		Body:   body,
		Header: map[string]string{headerPrefer: preferRepresentation},
	}, dest)
}

// Delete removes every row matching the filters. Without filters every row
// is deleted.
func (q Query) Delete(ctx context.Context) error {
	if err := q.ready(); err != nil {
		return err
	}
	if err := q.checkMutation(http.MethodDelete); err != nil {
		return err
	}
	return q.db.transport.call(ctx, request{
		Method: http.MethodDelete,
		Path:   q.path(),
		Query:  q.encodeFilters(),
	}, nil)
}

// ready reports a builder error, or a Query that was not created by From.
func (q Query) ready() error {
	if q.err != nil {
		return q.err
	}
	if q.db == nil {
		return fmt.Errorf("%w: query is not bound to a database, use From", ErrInvalidInput)
	}
	return nil
}

func (q Query) checkMutation(method string) error {
	if len(q.filters) > 0 {
		return nil
	}
	if q.db.refuseUnfiltered {
		return fmt.Errorf("%w: %s %s", ErrUnfilteredMutation, method, q.table)
	}
	q.db.logger.WithFields(logrus.Fields{
		"table":  q.table,
		"method": method,
	}).Warn("mutation without filters targets every row")
	return nil
}

// Select runs q and returns the rows as []T.
//
// Example:
//
//	todos, err := sdk.Select[Todo](ctx, db.From("todos").Eq("done", false))
func Select[T any](ctx context.Context, q Query) ([]T, error) {
	rows := []T{}
	if err := q.Execute(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertRows inserts rows and returns them as stored.
func InsertRows[T any](ctx context.Context, q Query, rows []T) ([]T, error) {
	out := []T{}
	if err := q.Insert(ctx, rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertRow inserts a single row and returns it as stored.
func InsertRow[T any](ctx context.Context, q Query, row T) (T, error) {
	var out T
	err := q.InsertOne(ctx, row, &out)
	return out, err
}

// UpdateRows applies patch to the filtered rows and returns them.
func UpdateRows[T any](ctx context.Context, q Query, patch interface{}) ([]T, error) {
	out := []T{}
	if err := q.Update(ctx, patch, &out); err != nil {
		return nil, err
	}
	return out, nil
}
