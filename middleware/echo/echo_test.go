package echo

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type fakeGate bool

func (g fakeGate) IsEnabled() bool { return bool(g) }

func setupEcho(cfg Config) *echo.Echo {
	e := echo.New()
	e.Use(Middleware(cfg))
	e.GET("/billing/history", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	})
	return e
}

func TestMiddleware_Success(t *testing.T) {
	e := setupEcho(Config{
		Billing:   fakeGate(true),
		GetUserID: FromHeader("X-User-ID"),
	})

	req := httptest.NewRequest(http.MethodGet, "/billing/history", http.NoBody)
	req.Header.Set("X-User-ID", "user1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user1", rec.Body.String())
}

func TestMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		userID   string
		want     int
		wantBody string
	}{
		{name: "billing disabled", enabled: false, userID: "user1", want: http.StatusServiceUnavailable, wantBody: "Billing unavailable"},
		{name: "unauthenticated", enabled: true, want: http.StatusUnauthorized, wantBody: "Unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupEcho(Config{
				Billing:   fakeGate(tt.enabled),
				GetUserID: FromHeader("X-User-ID"),
			})

			req := httptest.NewRequest(http.MethodGet, "/billing/history", http.NoBody)
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("UserID", "user_from_ctx")
			return next(c)
		}
	})
	e.Use(Middleware(Config{Billing: fakeGate(true), GetUserID: FromContext("UserID")}))
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_from_ctx", rec.Body.String())
}

func TestMiddleware_CustomDisabled(t *testing.T) {
	e := setupEcho(Config{
		Billing:   fakeGate(false),
		GetUserID: FromHeader("X-User-ID"),
		OnDisabled: func(c echo.Context) error {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "try later"})
		},
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing/history", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "try later")
}

func TestMiddleware_PanicsWithoutRequiredConfig(t *testing.T) {
	assert.PanicsWithValue(t, "gocredits/echo: Config.Billing is required", func() {
		Middleware(Config{GetUserID: FromHeader("X-User-ID")})
	})
	assert.PanicsWithValue(t, "gocredits/echo: Config.GetUserID is required", func() {
		Middleware(Config{Billing: fakeGate(true)})
	})
}

func TestWebhook(t *testing.T) {
	e := echo.New()
	e.POST("/webhooks/stripe", Webhook(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(r.Header.Get("Stripe-Signature")))
	})))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "t=1,v1=abc", rec.Body.String())
}
