package main

import (
	"context"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/birbparty/roost/internal/telemetry"
	"github.com/birbparty/roost/sdk"
)

var output = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// cli holds the state shared by the commands of one invocation
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg     cliConfig
	tel     *telemetry.Telemetry
	metrics *telemetry.CommandMetrics
	client  *sdk.Client
	release func()
}

func newRootCmd(app *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "roost",
		Short:         "Command line client for roost backends",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}
	addGlobalFlags(root.PersistentFlags())

	root.AddCommand(
		newQueryCmd(app),
		newInsertCmd(app),
		newUpdateCmd(app),
		newDeleteCmd(app),
		newInvokeCmd(app),
		newUploadCmd(app),
		newLoginCmd(app),
		newLogoutCmd(app),
		newArchiveCmd(app),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg

	tcfg := telemetry.NewConfigFromEnv("roost")
	tcfg.LogLevel = cfg.LogLevel
	if cfg.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
		tcfg.EnableTracing = true
		tcfg.EnableMetrics = true
	}
	if c.tel, err = telemetry.Init(cmd.Context(), tcfg, c.errOut); err != nil {
		return err
	}
	if c.metrics, err = telemetry.Commands(); err != nil {
		return err
	}
	if cfg.ConfigPath != "" {
		c.tel.Logger.WithField("path", cfg.ConfigPath).Debug("config loaded")
	}
	return nil
}

// connect creates the SDK client on first use, restoring any saved session
func (c *cli) connect(ctx context.Context) (*sdk.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	store, release, err := openSessionStore(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	client, err := sdk.NewClientWithContext(ctx, sdk.DefaultConfig().
		WithBaseURL(c.cfg.BaseURL).
		WithAPIKey(c.cfg.APIKey).
		WithTimeout(c.cfg.Timeout).
		WithLogger(c.tel.Logger).
		WithSessionStore(store))
	if err != nil {
		release()
		return nil, err
	}
	c.client = client
	c.release = release
	return client, nil
}

func (c *cli) close() {
	if c.client != nil {
		c.client.Close()
	}
	if c.release != nil {
		c.release()
	}
	if c.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.tel.Shutdown(ctx); err != nil {
			fmt.Fprintf(c.errOut, "Warning: flushing telemetry: %v\n", err)
		}
	}
}

// instrument runs fn inside a span and records the command metrics
func (c *cli) instrument(name string, fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, span := telemetry.StartSpan(cmd.Context(), "roost "+name,
			trace.WithAttributes(attribute.String("roost.command", name)))
		start := time.Now()
		err := fn(ctx, args)
		c.metrics.Record(ctx, name, err, time.Since(start))
		telemetry.EndSpan(span, err)
		return err
	}
}

func (c *cli) print(v interface{}) error {
	data, err := output.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}
