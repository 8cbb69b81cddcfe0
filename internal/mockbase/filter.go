package mockbase

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Reserved query parameters; every other parameter is a column filter.
const (
	paramSelect = "select"
	paramOrder  = "order"
	paramLimit  = "limit"
	paramOffset = "offset"
)

type filter struct {
	column string
	op     string
	value  string
	values []string
}

type orderKey struct {
	column    string
	ascending bool
}

// recordQuery is a parsed table request
type recordQuery struct {
	columns []string
	filters []filter
	orders  []orderKey
	limit   int
	offset  int
}

// parseRecordQuery reads the query string in the order it was sent. Filters
// keep their order, and a repeated order parameter appends sort keys.
func parseRecordQuery(args *fasthttp.Args) (*recordQuery, error) {
	q := &recordQuery{limit: -1}
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	args.VisitAll(func(k, v []byte) {
		key, value := string(k), string(v)
		switch key {
		case paramSelect:
			q.columns = parseColumns(value)
		case paramOrder:
			keys, err := parseOrder(value)
			if err != nil {
				fail(err)
				return
			}
			q.orders = append(q.orders, keys...)
		case paramLimit:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				fail(fmt.Errorf("invalid limit %q", value))
				return
			}
			q.limit = n
		case paramOffset:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				fail(fmt.Errorf("invalid offset %q", value))
				return
			}
			q.offset = n
		default:
			f, err := parseFilter(key, value)
			if err != nil {
				fail(err)
				return
			}
			q.filters = append(q.filters, f)
		}
	})

	if firstErr != nil {
		return nil, firstErr
	}
	return q, nil
}

func parseColumns(value string) []string {
	if value == "" || value == "*" {
		return nil
	}
	var columns []string
	for _, c := range strings.Split(value, ",") {
		c = strings.TrimSpace(c)
		if c == "*" {
			return nil
		}
		if c != "" {
			columns = append(columns, c)
		}
	}
	return columns
}

func parseOrder(value string) ([]orderKey, error) {
	var keys []orderKey
	for _, part := range strings.Split(value, ",") {
		segments := strings.Split(part, ".")
		key := orderKey{column: segments[0], ascending: true}
		if key.column == "" {
			return nil, fmt.Errorf("invalid order %q", value)
		}
		for _, modifier := range segments[1:] {
			switch modifier {
			case "asc":
				key.ascending = true
			case "desc":
				key.ascending = false
			case "nullsfirst", "nullslast":
			default:
				return nil, fmt.Errorf("invalid order direction %q", modifier)
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func parseFilter(column, value string) (filter, error) {
	op, operand, ok := strings.Cut(value, ".")
	if !ok {
		return filter{}, fmt.Errorf("filter %s=%q has no operator", column, value)
	}
	f := filter{column: column, op: op, value: operand}
	switch op {
	case "eq", "neq", "gt", "gte", "lt", "lte", "like", "ilike":
	case "is":
		if operand != "null" && operand != "true" && operand != "false" {
			return filter{}, fmt.Errorf("invalid is operand %q", operand)
		}
	case "in":
		values, err := parseList(operand)
		if err != nil {
			return filter{}, fmt.Errorf("filter %s: %w", column, err)
		}
		f.values = values
	default:
		return filter{}, fmt.Errorf("unknown operator %q", op)
	}
	return f, nil
}

// parseList reads (a,"b c","x\"y") into its items.
func parseList(s string) ([]string, error) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("list %q is not parenthesized", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, fmt.Errorf("empty list")
	}

	var items []string
	var cur strings.Builder
	quoted, inQuotes, escaped := false, false, false
	for _, r := range body {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuotes && r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
			quoted = true
		case r == ',' && !inQuotes:
			items = append(items, cur.String())
			cur.Reset()
			quoted = false
		default:
			cur.WriteRune(r)
		}
	}
	if inQuotes || escaped {
		return nil, fmt.Errorf("unterminated quote in list %q", s)
	}
	if cur.Len() > 0 || quoted || strings.HasSuffix(body, ",") {
		items = append(items, cur.String())
	}
	return items, nil
}

func (f filter) match(row record) bool {
	v, present := row[f.column]
	if f.op == "is" {
		switch f.value {
		case "null":
			return !present || v == nil
		case "true":
			return v == true
		default:
			return v == false
		}
	}
	if !present || v == nil {
		return false
	}

	switch f.op {
	case "eq":
		return compareOperand(v, f.value) == 0
	case "neq":
		return compareOperand(v, f.value) != 0
	case "gt":
		return compareOperand(v, f.value) > 0
	case "gte":
		return compareOperand(v, f.value) >= 0
	case "lt":
		return compareOperand(v, f.value) < 0
	case "lte":
		return compareOperand(v, f.value) <= 0
	case "like", "ilike":
		s, ok := v.(string)
		if !ok {
			return false
		}
		return likePattern(f.value, f.op == "ilike").MatchString(s)
	case "in":
		for _, item := range f.values {
			if compareOperand(v, item) == 0 {
				return true
			}
		}
	}
	return false
}

// likePattern translates % and * to "any run" and _ to "any character".
func likePattern(pattern string, foldCase bool) *regexp.Regexp {
	var b strings.Builder
	if foldCase {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%', '*':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

type number interface {
	Float64() (float64, error)
	String() string
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", time.DateOnly}

func asTime(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compareOperand compares a stored value with a filter operand taken from
// the query string.
func compareOperand(v interface{}, operand string) int {
	if f, ok := asFloat(v); ok {
		if o, err := strconv.ParseFloat(operand, 64); err == nil {
			return compareFloats(f, o)
		}
		return strings.Compare(formatCell(v), operand)
	}
	switch x := v.(type) {
	case bool:
		o, err := strconv.ParseBool(operand)
		if err != nil {
			return strings.Compare(strconv.FormatBool(x), operand)
		}
		return compareBools(x, o)
	case string:
		if a, ok := asTime(x); ok {
			if b, ok := asTime(operand); ok {
				return a.Compare(b)
			}
		}
		return strings.Compare(x, operand)
	}
	return strings.Compare(formatCell(v), operand)
}

// compareCells orders two stored values; nulls sort after everything.
func compareCells(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return compareFloats(fa, fb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return compareBools(ba, bb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return compareOperand(sa, sb)
		}
	}
	return strings.Compare(formatCell(a), formatCell(b))
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return "null"
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// apply filters, sorts, pages and projects rows. The input is not modified.
func (q *recordQuery) apply(rows []record) []record {
	out := make([]record, 0, len(rows))
	for _, row := range rows {
		if q.matches(row) {
			out = append(out, row)
		}
	}

	if len(q.orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, key := range q.orders {
				c := compareCells(out[i][key.column], out[j][key.column])
				if c == 0 {
					continue
				}
				if key.ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}

	if q.offset >= len(out) {
		out = out[:0]
	} else {
		out = out[q.offset:]
	}
	if q.limit >= 0 && q.limit < len(out) {
		out = out[:q.limit]
	}

	projected := make([]record, len(out))
	for i, row := range out {
		projected[i] = row.project(q.columns)
	}
	return projected
}

func (q *recordQuery) matches(row record) bool {
	for _, f := range q.filters {
		if !f.match(row) {
			return false
		}
	}
	return true
}
