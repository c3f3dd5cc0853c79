// Package fiber provides Fiber middleware that guards billing routes
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// UserIDKey is the Locals key the middleware stores the user ID under
const UserIDKey = "credits:userID"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// Gate reports whether billing is available. Satisfied by billing providers.
type Gate interface {
	IsEnabled() bool
}

// Config holds middleware configuration
type Config struct {
	// Billing is checked on every request (required)
	Billing Gate

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnDisabled is called when billing is not configured
	// If nil, returns 503 Service Unavailable
	OnDisabled func(c *fiber.Ctx) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error
}

// Middleware creates a Fiber middleware that only lets authenticated users
// through while billing is enabled
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Billing == nil {
		panic("gocredits/fiber: Config.Billing is required")
	}
	if cfg.GetUserID == nil {
		panic("gocredits/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		if !cfg.Billing.IsEnabled() {
			if cfg.OnDisabled != nil {
				return cfg.OnDisabled(c)
			}
			return defaultDisabled(c)
		}

		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// Webhook mounts a provider webhook handler on a Fiber route. The body is
// handed to the net/http handler byte for byte, as signature checks require.
//
// Example:
//
//	app.Post("/webhooks/stripe", fiber.Webhook(provider.WebhookHandler()))
func Webhook(h http.Handler) fiber.Handler {
	return adaptor.HTTPHandler(h)
}

// UserID returns the user ID stored by Middleware, if any
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}

func defaultDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Billing unavailable"})
}

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

// Convenience extractors for User ID

// FromLocals returns a UserIDExtractor that gets user ID from Fiber Locals
// set by an earlier auth middleware
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
