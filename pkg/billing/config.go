package billing

import (
	"net/http"
	"time"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Processor validates completed sessions and guards against duplicate grants.
	// Required for webhook processing.
	Processor *gocredits.Processor

	// WebhookSecret is used to verify incoming webhook signatures.
	// When empty the provider is disabled.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	// When empty the provider is disabled.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is used for structured logging (default: gocredits.NoopLogger)
	Logger gocredits.Logger

	// WebhookCallback is invoked after a webhook has been fully handled.
	// A callback error turns the response into a 500 so the provider redelivers;
	// the processed-session marker already prevents a second grant.
	WebhookCallback WebhookCallback

	// WebhookRateLimit is the maximum number of webhook requests per client IP
	// within WebhookRateWindow (default: 100 per minute)
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
}
