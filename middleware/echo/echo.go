// Package echo provides Echo middleware that guards billing routes
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UserIDKey is the Echo context key the middleware stores the user ID under
const UserIDKey = "credits:userID"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

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
	OnDisabled func(c echo.Context) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error
}

// Middleware creates an Echo middleware that only lets authenticated users
// through while billing is enabled
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Billing == nil {
		panic("gocredits/echo: Config.Billing is required")
	}
	if cfg.GetUserID == nil {
		panic("gocredits/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
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

			c.Set(UserIDKey, userID)
			return next(c)
		}
	}
}

// Webhook mounts a provider webhook handler on an Echo route
//
// Example:
//
//	e.POST("/webhooks/stripe", echo.Webhook(provider.WebhookHandler()))
func Webhook(h http.Handler) echo.HandlerFunc {
	return echo.WrapHandler(h)
}

// UserID returns the user ID stored by Middleware, if any
func UserID(c echo.Context) string {
	userID, _ := c.Get(UserIDKey).(string)
	return userID
}

func defaultDisabled(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Billing unavailable"})
}

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In billing middleware config:
//	GetUserID: echo.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
