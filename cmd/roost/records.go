package main

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/birbparty/roost/sdk"
)

type filterFlags struct {
	filters []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "row filter column=op.value (repeatable)")
}

func (f *filterFlags) apply(q sdk.Query) (sdk.Query, error) {
	var err error
	for _, raw := range f.filters {
		if q, err = applyFilter(q, raw); err != nil {
			return q, err
		}
	}
	return q, nil
}

func newQueryCmd(app *cli) *cobra.Command {
	var (
		filters filterFlags
		columns []string
		orders  []string
		limit   int
		offset  int
	)
	cmd := &cobra.Command{
		Use:   "query TABLE",
		Short: "Select rows from a table",
		Args:  cobra.ExactArgs(1),
	}
	filters.register(cmd)
	cmd.Flags().StringSliceVar(&columns, "select", nil, "columns to return")
	cmd.Flags().StringArrayVar(&orders, "order", nil, "sort key column[.asc|.desc] (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", -1, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", -1, "rows to skip")

	cmd.RunE = app.instrument("query", func(ctx context.Context, args []string) error {
		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		q := client.From(args[0])
		if len(columns) > 0 {
			q = q.Select(columns...)
		}
		if q, err = filters.apply(q); err != nil {
			return err
		}
		for _, raw := range orders {
			if q, err = applyOrder(q, raw); err != nil {
				return err
			}
		}
		if limit >= 0 {
			q = q.Limit(limit)
		}
		if offset >= 0 {
			q = q.Offset(offset)
		}

		rows := []jsoniter.RawMessage{}
		if err := q.Execute(ctx, &rows); err != nil {
			return err
		}
		return app.print(rows)
	})
	return cmd
}

func newInsertCmd(app *cli) *cobra.Command {
	var data, file string
	cmd := &cobra.Command{
		Use:   "insert TABLE",
		Short: "Insert one row (object) or many (array)",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON row or array of rows")
	cmd.Flags().StringVar(&file, "file", "", "read rows from a JSON or HuJSON file, - for stdin")

	cmd.RunE = app.instrument("insert", func(ctx context.Context, args []string) error {
		payload, err := readPayload(data, file, app.in)
		if err != nil {
			return err
		}
		var rows []interface{}
		switch v := payload.(type) {
		case []interface{}:
			rows = v
		case map[string]interface{}:
			rows = []interface{}{v}
		case nil:
			return errors.New("nothing to insert: pass --data or --file")
		default:
			return fmt.Errorf("insert takes an object or an array, got %T", payload)
		}

		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		created := []jsoniter.RawMessage{}
		if err := client.From(args[0]).Insert(ctx, rows, &created); err != nil {
			return err
		}
		return app.print(created)
	})
	return cmd
}

func newUpdateCmd(app *cli) *cobra.Command {
	var (
		filters filterFlags
		data    string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "update TABLE",
		Short: "Patch the rows matching the filters",
		Args:  cobra.ExactArgs(1),
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&data, "data", "", "JSON object of columns to set")
	cmd.Flags().BoolVar(&all, "all", false, "allow updating every row")

	cmd.RunE = app.instrument("update", func(ctx context.Context, args []string) error {
		if len(filters.filters) == 0 && !all {
			return errors.New("refusing to update every row: add --filter or --all")
		}
		payload, err := readPayload(data, "", app.in)
		if err != nil {
			return err
		}
		patch, ok := payload.(map[string]interface{})
		if !ok {
			return errors.New("--data must be a JSON object")
		}

		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		q, err := filters.apply(client.From(args[0]))
		if err != nil {
			return err
		}
		updated := []jsoniter.RawMessage{}
		if err := q.Update(ctx, patch, &updated); err != nil {
			return err
		}
		return app.print(updated)
	})
	return cmd
}

func newDeleteCmd(app *cli) *cobra.Command {
	var (
		filters filterFlags
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "delete TABLE",
		Short: "Delete the rows matching the filters",
		Args:  cobra.ExactArgs(1),
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "allow deleting every row")

	cmd.RunE = app.instrument("delete", func(ctx context.Context, args []string) error {
		if len(filters.filters) == 0 && !all {
			return errors.New("refusing to delete every row: add --filter or --all")
		}
		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		q, err := filters.apply(client.From(args[0]))
		if err != nil {
			return err
		}
		if err := q.Delete(ctx); err != nil {
			return err
		}
		return app.print(map[string]interface{}{"table": args[0], "deleted": true})
	})
	return cmd
}
