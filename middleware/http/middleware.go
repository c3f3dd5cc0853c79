// Package http provides net/http middleware that guards billing routes
package http

import (
	"context"
	"net/http"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Gate reports whether billing is available. Satisfied by billing providers.
type Gate interface {
	IsEnabled() bool
}

// Config holds middleware configuration
type Config struct {
	// Billing is checked on every request (required)
	Billing Gate

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// OnDisabled is called when billing is not configured
	// If nil, returns 503 Service Unavailable
	OnDisabled func(w http.ResponseWriter, r *http.Request)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)
}

// Middleware creates an HTTP middleware that only lets authenticated users
// through while billing is enabled. The user ID is stored under UserIDKey.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Billing == nil {
		panic("gocredits/http: Config.Billing is required")
	}
	if config.GetUserID == nil {
		panic("gocredits/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Billing.IsEnabled() {
				if config.OnDisabled != nil {
					config.OnDisabled(w, r)
				} else {
					http.Error(w, "Billing unavailable", http.StatusServiceUnavailable)
				}
				return
			}

			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// HandlerFunc creates the middleware for http.HandlerFunc chains
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// Webhook restricts a provider webhook handler to POST. The provider handler
// does its own signature checks and answers 503 itself while disabled.
func Webhook(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "credits:userID"
)

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID returns the user ID stored by Middleware, if any
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
