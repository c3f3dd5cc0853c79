package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is disabled because
	// its API key or webhook secret is missing
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrMisconfiguredSecret is returned when webhook verification is attempted
	// without a webhook secret
	ErrMisconfiguredSecret = errors.New("webhook secret not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")

	// ErrNotSupported is returned when a provider doesn't support an operation
	ErrNotSupported = errors.New("operation not supported by this provider")
)
