// Package telemetry sets up logging, tracing and metrics for the roost
// binaries.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the providers installed by Init
type Telemetry struct {
	Logger *logrus.Logger

	shutdowns []func(context.Context) error
}

// Init configures the process logger, tracing and metrics. Logs go to
// logOut (stderr when nil).
func Init(ctx context.Context, cfg *Config, logOut io.Writer) (*Telemetry, error) {
	t := &Telemetry{Logger: NewLogger(cfg, logOut)}
	SetLogger(t.Logger)

	shutdownTracing, err := InitTracing(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	t.shutdowns = append(t.shutdowns, shutdownTracing)

	shutdownMetrics, err := InitMetrics(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	t.shutdowns = append(t.shutdowns, shutdownMetrics)

	t.Logger.WithFields(logrus.Fields{
		"tracing": cfg.EnableTracing,
		"metrics": cfg.EnableMetrics,
	}).Debug("telemetry initialized")
	return t, nil
}

// Shutdown flushes and stops the providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FiberTracingMiddleware runs each request in a server span continuing any
// trace propagated by the caller
func FiberTracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carrier := propagation.HeaderCarrier{}
		c.Request().Header.VisitAll(func(k, v []byte) {
			carrier.Set(string(k), string(v))
		})
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)

		ctx, span := StartSpan(ctx, c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		c.SetUserContext(ctx)

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		span.SetAttributes(
			semconv.HTTPMethodKey.String(c.Method()),
			semconv.HTTPTargetKey.String(c.OriginalURL()),
			semconv.HTTPRouteKey.String(c.Route().Path),
			semconv.HTTPStatusCodeKey.Int(status),
		)
		spanErr := err
		if spanErr == nil && status >= fiber.StatusInternalServerError {
			spanErr = fmt.Errorf("HTTP %d", status)
		}
		EndSpan(span, spanErr)

		WithContext(ctx).WithFields(logrus.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   status,
			"duration": time.Since(start).Milliseconds(),
		}).Debug("request traced")
		return err
	}
}
