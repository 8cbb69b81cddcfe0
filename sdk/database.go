package sdk

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const recordsPath = "/api/database/records"

// Database is the entry point for table queries. Obtain it from
// Client.Database; it is safe for concurrent use.
type Database struct {
	transport        *httpTransport
	logger           logrus.FieldLogger
	refuseUnfiltered bool
}

func newDatabase(t *httpTransport, logger logrus.FieldLogger, refuseUnfiltered bool) *Database {
	return &Database{transport: t, logger: logger, refuseUnfiltered: refuseUnfiltered}
}

// From starts a query on table with every column selected and no filters.
//
// Example:
//
//	q := client.Database().From("todos")
//	open := q.Eq("done", false)
//	mine := open.Eq("owner", me) // q and open are unchanged
func (d *Database) From(table string) Query {
	q := Query{db: d, table: table, columns: "*"}
	if table == "" {
		q.err = fmt.Errorf("%w: empty table name", ErrInvalidInput)
	}
	return q
}
