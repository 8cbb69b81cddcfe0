package mockbase

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTableNotFound is returned for reads of a table nothing was inserted into
var ErrTableNotFound = errors.New("table not found")

// Server-managed columns
const (
	columnID        = "id"
	columnCreatedAt = "created_at"
	columnUpdatedAt = "updated_at"
)

// record is one stored row
type record map[string]interface{}

func (r record) clone() record {
	out := make(record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (r record) project(columns []string) record {
	if len(columns) == 0 {
		return r.clone()
	}
	out := make(record, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

// tableStore keeps every table in memory in insertion order
type tableStore struct {
	mu     sync.RWMutex
	tables map[string][]record
	now    func() time.Time
}

func newTableStore(now func() time.Time) *tableStore {
	return &tableStore{
		tables: make(map[string][]record),
		now:    now,
	}
}

// createTable makes an empty table readable; existing rows are kept
func (s *tableStore) createTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = []record{}
	}
}

func (s *tableStore) tableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *tableStore) count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (s *tableStore) list(table string, q *recordQuery) ([]record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	return q.apply(rows), nil
}

// insert stores rows, creating the table on first use, and returns them as
// stored. id is filled with a uuid when missing, and both timestamps are set
// unless the row carries a non-zero created_at.
func (s *tableStore) insert(table string, rows []record) []record {
	now := s.now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]record, len(rows))
	for i, row := range rows {
		r := row.clone()
		if id, ok := r[columnID]; !ok || id == nil || id == "" {
			r[columnID] = uuid.NewString()
		}
		if !hasTimestamp(r[columnCreatedAt]) {
			r[columnCreatedAt] = now
		}
		r[columnUpdatedAt] = now
		s.tables[table] = append(s.tables[table], r)
		stored[i] = r.clone()
	}
	return stored
}

func hasTimestamp(v interface{}) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	t, ok := asTime(s)
	return ok && !t.IsZero()
}

// update merges patch into every matching row. The id column is never
// changed and updated_at is refreshed.
func (s *tableStore) update(table string, filters []filter, patch record) ([]record, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	q := &recordQuery{filters: filters}
	updated := []record{}
	for _, row := range rows {
		if !q.matches(row) {
			continue
		}
		for k, v := range patch {
			if k == columnID {
				continue
			}
			row[k] = v
		}
		row[columnUpdatedAt] = now
		updated = append(updated, row.clone())
	}
	return updated, nil
}

// remove deletes every matching row and returns the removed rows
func (s *tableStore) remove(table string, filters []filter) ([]record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}
	q := &recordQuery{filters: filters}
	kept := rows[:0:0]
	removed := []record{}
	for _, row := range rows {
		if q.matches(row) {
			removed = append(removed, row)
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return removed, nil
}
