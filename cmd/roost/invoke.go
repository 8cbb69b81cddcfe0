package main

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/birbparty/roost/sdk"
)

func newInvokeCmd(app *cli) *cobra.Command {
	var data, file string
	cmd := &cobra.Command{
		Use:   "invoke SLUG",
		Short: "Call a serverless function",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body")
	cmd.Flags().StringVar(&file, "file", "", "read the request body from a file, - for stdin")

	cmd.RunE = app.instrument("invoke", func(ctx context.Context, args []string) error {
		body, err := readPayload(data, file, app.in)
		if err != nil {
			return err
		}
		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		var reply jsoniter.RawMessage
		if err := client.Functions().Invoke(ctx, args[0], body, &reply); err != nil {
			return err
		}
		if len(reply) == 0 {
			reply = jsoniter.RawMessage("null")
		}
		return app.print(reply)
	})
	return cmd
}

func newUploadCmd(app *cli) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload BUCKET KEY FILE",
		Short: "Store a local file in a bucket",
		Args:  cobra.ExactArgs(3),
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (guessed from the file extension by default)")

	cmd.RunE = app.instrument("upload", func(ctx context.Context, args []string) error {
		bucket, key, path := args[0], args[1], args[2]
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(path))
		}
		client, err := app.connect(ctx)
		if err != nil {
			return err
		}
		obj, err := client.Storage().From(bucket).Upload(ctx, key, f, &sdk.UploadOptions{ContentType: contentType})
		if err != nil {
			return err
		}
		return app.print(obj)
	})
	return cmd
}
