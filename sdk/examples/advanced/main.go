// Advanced Example
// Configures retries, a circuit breaker, logrus logging and Prometheus
// metrics, then uploads a file and invokes a function.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/roost/sdk"
	"github.com/birbparty/roost/sdk/metrics"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	registry := prometheus.NewRegistry()
	observer := sdk.NewCompositeObserver(
		sdk.NewLogObserver(logger),
		metrics.NewPrometheusObserver(registry, "example"),
	)

	config := sdk.DefaultConfig().
		WithBaseURL(os.Getenv("ROOST_BASE_URL")).
		WithAPIKey(os.Getenv("ROOST_API_KEY")).
		WithLogger(logger).
		WithObserver(observer).
		WithRetries(3).
		WithCircuitBreaker(sdk.CircuitBreakerConfig{
			FailureThreshold: 5,
			Timeout:          10 * time.Second,
		})

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		log.Println(http.ListenAndServe(":9100", nil))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	obj, err := client.Storage().From("reports").Upload(ctx, "daily/summary.txt",
		strings.NewReader("all systems nominal\n"),
		&sdk.UploadOptions{ContentType: "text/plain"})
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	log.Printf("Uploaded %s (%d bytes)", obj.Key, obj.Size)

	reply, err := client.Functions().InvokeValue(ctx, "summarize",
		sdk.Object(map[string]sdk.Value{"key": sdk.String(obj.Key)}))
	if err != nil {
		if sdk.IsRetryable(err) {
			log.Printf("Function temporarily unavailable: %v", err)
			return
		}
		log.Fatalf("Invoke failed: %v", err)
	}
	log.Printf("Function replied %s", reply)
	log.Printf("Circuit is %s", client.CircuitState())
}
