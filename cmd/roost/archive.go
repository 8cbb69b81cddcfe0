package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/birbparty/roost/internal/archive"
)

func newArchiveCmd(app *cli) *cobra.Command {
	var (
		bucket      string
		pageSize    int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "archive TABLE...",
		Short: "Export tables as JSON Lines to Spaces",
		Long: "Export tables as JSON Lines to an S3-compatible bucket. The endpoint and " +
			"credentials come from ROOST_SPACES_ENDPOINT, ROOST_SPACES_REGION, " +
			"ROOST_SPACES_ACCESS_KEY and ROOST_SPACES_SECRET_KEY.",
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "target bucket (env ROOST_SPACES_BUCKET)")
	cmd.Flags().IntVar(&pageSize, "page-size", archive.DefaultPageSize, "rows fetched per request")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "tables exported at once")

	cmd.RunE = app.instrument("archive", func(ctx context.Context, args []string) error {
		if pageSize <= 0 {
			return fmt.Errorf("invalid page size %d", pageSize)
		}
		if concurrency <= 0 {
			concurrency = 1
		}
		spaces := archive.LoadSpacesConfig()
		if bucket != "" {
			spaces.Bucket = bucket
		}
		uploader, err := archive.NewSpacesClient(spaces)
		if err != nil {
			return err
		}
		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		exporter := archive.NewExporter(client.Database(), uploader, app.tel.Logger)

		results := make([]*archive.Result, len(args))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, table := range args {
			g.Go(func() error {
				result, err := exporter.Export(gctx, table, pageSize)
				if err != nil {
					return fmt.Errorf("archiving %s: %w", table, err)
				}
				results[i] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return app.print(results)
	})
	return cmd
}
