package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
	"github.com/mihaimyh/gocredits/storage/memory"
)

const testUserID = "user123"

type fakeBilling struct {
	enabled     bool
	catalog     *gocredits.Catalog
	checkoutErr error
	historyErr  error

	lastCheckout gocredits.CheckoutRequest
	lastLimit    int
}

func (f *fakeBilling) IsEnabled() bool { return f.enabled }

func (f *fakeBilling) Catalog() *gocredits.Catalog {
	if f.catalog == nil {
		return gocredits.DefaultCatalog()
	}
	return f.catalog
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, req gocredits.CheckoutRequest) (*gocredits.CheckoutResult, error) {
	f.lastCheckout = req
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &gocredits.CheckoutResult{SessionID: "cs_1", RedirectURL: "https://checkout.example.com/cs_1"}, nil
}

func (f *fakeBilling) PaymentHistory(_ context.Context, userID string, limit int) ([]gocredits.HistoryEntry, error) {
	f.lastLimit = limit
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return []gocredits.HistoryEntry{{SessionID: "cs_1", TierID: "explorer", Amount: 499, Currency: "usd", Status: "complete"}}, nil
}

func newTestHandler(t *testing.T, b *fakeBilling, mutate func(*Config)) http.Handler {
	t.Helper()
	config := Config{
		Billing:      b,
		GetUserID:    FromHeader("X-User-ID"),
		GetUserEmail: FromHeader("X-User-Email"),
	}
	if mutate != nil {
		mutate(&config)
	}
	h, err := NewHandler(config)
	require.NoError(t, err)
	return h.Routes()
}

func do(handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func authed() map[string]string {
	return map[string]string{"X-User-ID": testUserID, "X-User-Email": "user@example.com"}
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(Config{GetUserID: FromHeader("X-User-ID")})
	assert.Error(t, err)

	_, err = NewHandler(Config{Billing: &fakeBilling{}})
	assert.Error(t, err)
}

func TestHandler_GetTiers(t *testing.T) {
	handler := newTestHandler(t, &fakeBilling{}, nil)

	w := do(handler, http.MethodGet, "/tiers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TiersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, gocredits.DefaultCatalogVersion, resp.CatalogVersion)
	require.Len(t, resp.Tiers, 3)
	assert.Equal(t, "explorer", resp.Tiers[0].ID)
	assert.Equal(t, int64(499), resp.Tiers[0].PriceMinorUnits)
	assert.Equal(t, int64(5_000_000), resp.Tiers[0].CreditsGranted)
}

func TestHandler_GetTiers_ServesProviderCatalog(t *testing.T) {
	catalog, err := gocredits.NewCatalog("custom-v2", gocredits.PricingTier{
		ID:              "studio",
		Name:            "Studio",
		PriceMinorUnits: 2999,
		CreditsGranted:  30_000_000,
		Currency:        "eur",
	})
	require.NoError(t, err)
	handler := newTestHandler(t, &fakeBilling{catalog: catalog}, nil)

	w := do(handler, http.MethodGet, "/tiers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TiersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "custom-v2", resp.CatalogVersion)
	require.Len(t, resp.Tiers, 1)
	assert.Equal(t, "studio", resp.Tiers[0].ID)
	assert.Equal(t, "eur", resp.Tiers[0].Currency)
}

func TestHandler_GetStatus(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		t.Run(fmt.Sprintf("enabled=%v", enabled), func(t *testing.T) {
			handler := newTestHandler(t, &fakeBilling{enabled: enabled}, nil)

			w := do(handler, http.MethodGet, "/status", "", nil)
			require.Equal(t, http.StatusOK, w.Code)

			var resp StatusResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, enabled, resp.Enabled)
		})
	}
}

func TestHandler_CreateCheckout(t *testing.T) {
	b := &fakeBilling{enabled: true}
	handler := newTestHandler(t, b, nil)

	w := do(handler, http.MethodPost, "/checkout",
		`{"tierId":"artisan","successUrl":"https://app.example.com/ok","cancelUrl":"https://app.example.com/cancel"}`, authed())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp gocredits.CheckoutResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cs_1", resp.SessionID)
	assert.Equal(t, "https://checkout.example.com/cs_1", resp.RedirectURL)

	assert.Equal(t, testUserID, b.lastCheckout.UserID)
	assert.Equal(t, "user@example.com", b.lastCheckout.UserEmail)
	assert.Equal(t, "artisan", b.lastCheckout.TierID)
}

func TestHandler_CreateCheckout_Errors(t *testing.T) {
	validBody := `{"tierId":"explorer","successUrl":"https://a.example.com/s","cancelUrl":"https://a.example.com/c"}`

	tests := []struct {
		name       string
		billing    *fakeBilling
		body       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "unauthenticated",
			billing:    &fakeBilling{enabled: true},
			body:       validBody,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "user id too long",
			billing:    &fakeBilling{enabled: true},
			body:       validBody,
			headers:    map[string]string{"X-User-ID": strings.Repeat("u", 256)},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "disabled",
			billing:    &fakeBilling{enabled: false},
			body:       validBody,
			headers:    authed(),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "malformed json",
			billing:    &fakeBilling{enabled: true},
			body:       `{"tierId":`,
			headers:    authed(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			billing:    &fakeBilling{enabled: true},
			body:       `{"tierId":"explorer","successUrl":"https://a.example.com/s","cancelUrl":"https://a.example.com/c","credits":99999999}`,
			headers:    authed(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing tier",
			billing:    &fakeBilling{enabled: true},
			body:       `{"successUrl":"https://a.example.com/s","cancelUrl":"https://a.example.com/c"}`,
			headers:    authed(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid url",
			billing:    &fakeBilling{enabled: true},
			body:       `{"tierId":"explorer","successUrl":"not a url","cancelUrl":"https://a.example.com/c"}`,
			headers:    authed(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown tier",
			billing:    &fakeBilling{enabled: true, checkoutErr: fmt.Errorf("%w: %q", gocredits.ErrInvalidTier, "x")},
			body:       validBody,
			headers:    authed(),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "provider error",
			billing:    &fakeBilling{enabled: true, checkoutErr: fmt.Errorf("%w: card_declined", billing.ErrProviderAPIError)},
			body:       validBody,
			headers:    authed(),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unexpected error",
			billing:    &fakeBilling{enabled: true, checkoutErr: errors.New("boom")},
			body:       validBody,
			headers:    authed(),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, tt.billing, nil)
			w := do(handler, http.MethodPost, "/checkout", tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestHandler_CreateCheckout_HidesProviderDetails(t *testing.T) {
	b := &fakeBilling{enabled: true, checkoutErr: fmt.Errorf("%w: sk_live_secret leaked", billing.ErrProviderAPIError)}
	handler := newTestHandler(t, b, nil)

	w := do(handler, http.MethodPost, "/checkout",
		`{"tierId":"explorer","successUrl":"https://a.example.com/s","cancelUrl":"https://a.example.com/c"}`, authed())
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sk_live_secret")
}

func TestHandler_CustomOnError(t *testing.T) {
	var got error
	handler := newTestHandler(t, &fakeBilling{enabled: true}, func(c *Config) {
		c.OnError = func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		}
	})

	w := do(handler, http.MethodPost, "/checkout", `{}`, nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Error(t, got)
}

func TestHandler_GetHistory(t *testing.T) {
	b := &fakeBilling{enabled: true}
	handler := newTestHandler(t, b, nil)

	w := do(handler, http.MethodGet, "/history?limit=25", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, b.lastLimit)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testUserID, resp.UserID)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "cs_1", resp.Entries[0].SessionID)

	w = do(handler, http.MethodGet, "/history", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, b.lastLimit, "default limit is left to the provider")
}

func TestHandler_GetHistory_Errors(t *testing.T) {
	tests := []struct {
		name       string
		billing    *fakeBilling
		target     string
		headers    map[string]string
		wantStatus int
	}{
		{"unauthenticated", &fakeBilling{enabled: true}, "/history", nil, http.StatusUnauthorized},
		{"disabled", &fakeBilling{}, "/history", authed(), http.StatusServiceUnavailable},
		{"bad limit", &fakeBilling{enabled: true}, "/history?limit=abc", authed(), http.StatusBadRequest},
		{"zero limit", &fakeBilling{enabled: true}, "/history?limit=0", authed(), http.StatusBadRequest},
		{
			"provider error",
			&fakeBilling{enabled: true, historyErr: fmt.Errorf("%w: timeout", billing.ErrProviderAPIError)},
			"/history", authed(), http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, tt.billing, nil)
			w := do(handler, http.MethodGet, tt.target, "", tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandler_GetBalance(t *testing.T) {
	ledger := memory.NewLedger()
	require.NoError(t, ledger.Grant(context.Background(), &gocredits.CreditGrant{
		UserID: testUserID, TierID: "explorer", CreditsGranted: 5_000_000, SessionID: "cs_1",
	}))
	handler := newTestHandler(t, &fakeBilling{enabled: true}, func(c *Config) { c.Balances = ledger })

	w := do(handler, http.MethodGet, "/balance", "", authed())
	require.Equal(t, http.StatusOK, w.Code)

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5_000_000), resp.Credits)
}

func TestHandler_BalanceRouteRequiresLedger(t *testing.T) {
	handler := newTestHandler(t, &fakeBilling{enabled: true}, nil)

	w := do(handler, http.MethodGet, "/balance", "", authed())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFromContext(t *testing.T) {
	type ctxKey struct{}
	getUserID := FromContext(ctxKey{})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, getUserID(req))

	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "u42"))
	assert.Equal(t, "u42", getUserID(req))
}
