package stripe

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/billing/internal"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	signatureHeader          = "Stripe-Signature"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Processor, APIKey, WebhookSecret, etc.)

	// PaymentMethodTypes restricts the payment methods offered at checkout (default: card)
	PaymentMethodTypes []string

	// BackendURL overrides the Stripe API base URL. Used to point the client
	// at a stub server in tests.
	BackendURL string
}

// Provider implements billing.Provider for Stripe Checkout.
type Provider struct {
	processor          *gocredits.Processor
	catalog            *gocredits.Catalog
	stripeClient       *stripe.Client
	rateLimiter        *internal.RateLimiter
	webhookSecret      string
	apiKey             string
	paymentMethodTypes []string
	callback           billing.WebhookCallback
	metrics            billing.Metrics
	logger             gocredits.Logger
}

var _ billing.Provider = (*Provider)(nil)

// NewProvider creates a new Stripe billing provider.
//
// A missing API key or webhook secret does not fail construction: the provider
// is returned disabled, a warning is logged once, and every operation reports
// billing.ErrProviderNotConfigured until it is rebuilt with credentials.
func NewProvider(config Config) (*Provider, error) {
	if config.Processor == nil {
		return nil, fmt.Errorf("%w: processor is required", billing.ErrProviderNotConfigured)
	}

	logger := config.Logger
	if logger == nil {
		logger = &gocredits.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	apiKey := strings.TrimSpace(config.APIKey)
	webhookSecret := strings.TrimSpace(config.WebhookSecret)

	switch {
	case apiKey == "" && webhookSecret == "":
		logger.Warn("Stripe billing disabled: API key and webhook secret are not configured")
	case apiKey == "":
		logger.Warn("Stripe billing disabled: API key is not configured")
	case webhookSecret == "":
		logger.Warn("Stripe billing disabled: webhook secret is not configured",
			gocredits.Field{Key: "error", Value: billing.ErrMisconfiguredSecret.Error()})
	}

	// Stripe is never retried automatically: a failed checkout surfaces to the
	// user, who can simply try again.
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     &leveledLogger{logger: logger},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(config.BackendURL)
	}
	stripeClient := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig)))

	paymentMethodTypes := config.PaymentMethodTypes
	if len(paymentMethodTypes) == 0 {
		paymentMethodTypes = []string{"card"}
	}

	limit := config.WebhookRateLimit
	if limit <= 0 {
		limit = defaultRateLimitRequests
	}
	window := config.WebhookRateWindow
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	limiter := internal.NewRateLimiter(limit, window)
	limiter.OnLimited = func(r *http.Request) {
		metrics.RecordWebhookRateLimited(providerName)
		logger.Warn("Webhook rate limit exceeded",
			gocredits.Field{Key: "ip", Value: internal.GetClientIP(r)},
			gocredits.Field{Key: "path", Value: r.URL.Path},
			gocredits.Field{Key: "user_agent", Value: r.UserAgent()},
		)
	}

	return &Provider{
		processor:          config.Processor,
		catalog:            config.Processor.Catalog(),
		stripeClient:       stripeClient,
		rateLimiter:        limiter,
		webhookSecret:      webhookSecret,
		apiKey:             apiKey,
		paymentMethodTypes: paymentMethodTypes,
		callback:           config.WebhookCallback,
		metrics:            metrics,
		logger:             logger,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// IsEnabled reports whether both the API key and the webhook secret are set.
func (p *Provider) IsEnabled() bool {
	return p.apiKey != "" && p.webhookSecret != ""
}

// Catalog returns the pricing catalog checkout sessions are created from.
func (p *Provider) Catalog() *gocredits.Catalog {
	return p.catalog
}

// WebhookHandler returns the HTTP handler for Stripe webhooks, rate limited
// per client IP.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// leveledLogger routes stripe-go's own logging into gocredits.Logger.
type leveledLogger struct {
	logger gocredits.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), gocredits.Field{Key: "source", Value: providerName})
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), gocredits.Field{Key: "source", Value: providerName})
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), gocredits.Field{Key: "source", Value: providerName})
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), gocredits.Field{Key: "source", Value: providerName})
}
