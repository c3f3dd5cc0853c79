// Package gin provides Gin middleware that guards billing routes
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"
)

// UserIDKey is the Gin context key the middleware stores the user ID under
const UserIDKey = "credits:userID"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

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
	OnDisabled func(c *gongin.Context)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)
}

// Middleware creates a Gin middleware that only lets authenticated users
// through while billing is enabled
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Billing == nil {
		panic("gocredits/gin: Config.Billing is required")
	}
	if cfg.GetUserID == nil {
		panic("gocredits/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		if !cfg.Billing.IsEnabled() {
			if cfg.OnDisabled != nil {
				cfg.OnDisabled(c)
			} else {
				defaultDisabled(c)
			}
			c.Abort()
			return
		}

		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				defaultUnauthorized(c)
			}
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// Webhook mounts a provider webhook handler on a Gin route
//
// Example:
//
//	router.POST("/webhooks/stripe", gin.Webhook(provider.WebhookHandler()))
func Webhook(h http.Handler) gongin.HandlerFunc {
	return gongin.WrapH(h)
}

// UserID returns the user ID stored by Middleware, if any
func UserID(c *gongin.Context) string {
	return c.GetString(UserIDKey)
}

func defaultDisabled(c *gongin.Context) {
	c.JSON(http.StatusServiceUnavailable, gongin.H{"error": "Billing unavailable"})
}

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In billing middleware config:
//	GetUserID: gin.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
