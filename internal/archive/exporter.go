package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/birbparty/roost/sdk"
)

const (
	// ContentType is set on uploaded archives
	ContentType = "application/x-jsonlines"
	// DefaultPageSize is used when Export gets a non-positive page size
	DefaultPageSize = 500

	keyPrefix = "archives/"
)

// Uploader stores an archive body under key
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, metadata map[string]string) error
}

// Result describes a finished export
type Result struct {
	Table string `json:"table"`
	Key   string `json:"key"`
	Rows  int    `json:"rows"`
	Pages int    `json:"pages"`
}

// Exporter pages through a table and streams it to an Uploader
type Exporter struct {
	db       *sdk.Database
	uploader Uploader
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewExporter creates an exporter reading through db
func NewExporter(db *sdk.Database, uploader Uploader, logger logrus.FieldLogger) *Exporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Exporter{db: db, uploader: uploader, logger: logger, now: time.Now}
}

// Key returns the object key of an archive of table taken at t
func Key(table string, t time.Time) string {
	return fmt.Sprintf("%s%s-%d.jsonl", datePrefix(t), table, t.Unix())
}

func datePrefix(t time.Time) string {
	return keyPrefix + t.UTC().Format("2006-01-02") + "/"
}

// Export writes every row of table, ordered by id, as one JSON object per
// line. Pages are fetched while the upload consumes earlier ones. A failure
// on either side aborts both and no Result is returned.
func (e *Exporter) Export(ctx context.Context, table string, pageSize int) (*Result, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: empty table name", sdk.ErrInvalidInput)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	started := e.now()
	result := &Result{Table: table, Key: Key(table, started)}
	log := e.logger.WithFields(logrus.Fields{"table": table, "key": result.Key})

	pr, pw := io.Pipe()
	var rows, pages atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := e.writePages(gctx, table, pageSize, pw, &rows, &pages)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := e.uploader.Upload(gctx, result.Key, pr, map[string]string{
			"table":        table,
			"archive-time": started.UTC().Format(time.RFC3339),
		})
		if err == nil {
			// drain so the writer never blocks on an uploader that stopped early
			_, err = io.Copy(io.Discard, pr)
		}
		pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("archive export failed")
		return nil, fmt.Errorf("export %s: %w", table, err)
	}

	result.Rows = int(rows.Load())
	result.Pages = int(pages.Load())
	log.WithFields(logrus.Fields{
		"rows":     result.Rows,
		"pages":    result.Pages,
		"duration": e.now().Sub(started).String(),
	}).Info("archive exported")
	return result, nil
}

func (e *Exporter) writePages(ctx context.Context, table string, pageSize int, w io.Writer, rows, pages *atomic.Int64) error {
	buf := bufio.NewWriter(w)
	var line bytes.Buffer
	for from := 0; ; from += pageSize {
		page, err := sdk.Select[json.RawMessage](ctx, e.db.From(table).
			Order("id", true).
			Range(from, from+pageSize-1))
		if err != nil {
			return fmt.Errorf("read rows %d-%d: %w", from, from+pageSize-1, err)
		}
		pages.Add(1)

		for _, row := range page {
			line.Reset()
			// rows must not span lines
			if err := json.Compact(&line, row); err != nil {
				return fmt.Errorf("invalid row: %w", err)
			}
			line.WriteByte('\n')
			if _, err := buf.Write(line.Bytes()); err != nil {
				return err
			}
			rows.Add(1)
		}
		if len(page) < pageSize {
			return buf.Flush()
		}
	}
}
