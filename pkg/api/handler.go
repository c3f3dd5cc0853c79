package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

const (
	maxUserIDLen    = 255
	maxRequestBytes = 16 * 1024
)

// Handler provides HTTP endpoints for tiers, checkout and payment history
type Handler struct {
	config   Config
	validate *validator.Validate
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes returns a mux serving every billing endpoint:
//
//	GET  /tiers
//	GET  /status
//	POST /checkout
//	GET  /history?limit=N
//	GET  /balance (when Balances is configured)
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tiers", h.GetTiers)
	mux.HandleFunc("GET /status", h.GetStatus)
	mux.HandleFunc("POST /checkout", h.CreateCheckout)
	mux.HandleFunc("GET /history", h.GetHistory)
	if h.config.Balances != nil {
		mux.HandleFunc("GET /balance", h.GetBalance)
	}
	return mux
}

// GetTiers returns the provider's catalog. It needs neither authentication
// nor an enabled provider.
func (h *Handler) GetTiers(w http.ResponseWriter, _ *http.Request) {
	catalog := h.config.Billing.Catalog()
	writeJSON(w, http.StatusOK, TiersResponse{
		CatalogVersion: catalog.Version(),
		Tiers:          catalog.Tiers(),
	})
}

// GetStatus reports whether the billing provider is configured.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Enabled: h.config.Billing.IsEnabled()})
}

// CreateCheckout starts a checkout session for the authenticated user.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if !h.config.Billing.IsEnabled() {
		h.handleError(w, r, billing.ErrProviderNotConfigured, http.StatusServiceUnavailable)
		return
	}

	var body CheckoutRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		h.handleError(w, r, validationError(err), http.StatusBadRequest)
		return
	}

	req := gocredits.CheckoutRequest{
		UserID:     userID,
		TierID:     body.TierID,
		SuccessURL: body.SuccessURL,
		CancelURL:  body.CancelURL,
	}
	if h.config.GetUserEmail != nil {
		req.UserEmail = h.config.GetUserEmail(r)
	}

	result, err := h.config.Billing.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err, checkoutErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetHistory returns the user's paid sessions among the most recent ones.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if !h.config.Billing.IsEnabled() {
		h.handleError(w, r, billing.ErrProviderNotConfigured, http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.handleError(w, r, fmt.Errorf("limit must be a positive integer"), http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.config.Billing.PaymentHistory(r.Context(), userID, limit)
	if err != nil {
		h.handleError(w, r, err, checkoutErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{UserID: userID, Entries: entries})
}

// GetBalance returns the user's ledger balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if h.config.Balances == nil {
		h.handleError(w, r, billing.ErrNotSupported, http.StatusNotImplemented)
		return
	}

	credits, err := h.config.Balances.Balance(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to read balance: %w", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Credits: credits})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return "", false
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

func checkoutErrorStatus(err error) int {
	switch {
	case errors.Is(err, gocredits.ErrInvalidTier), errors.Is(err, gocredits.ErrInvalidMetadata):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, billing.ErrProviderAPIError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(fields, "; "))
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		h.config.Logger.Error("Billing API request failed",
			gocredits.Field{Key: "path", Value: r.URL.Path},
			gocredits.Field{Key: "status", Value: statusCode},
			gocredits.Field{Key: "error", Value: err.Error()})
	}

	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	// Provider details stay in the logs
	msg := err.Error()
	if statusCode == http.StatusBadGateway || statusCode == http.StatusInternalServerError {
		msg = http.StatusText(statusCode)
	}
	writeJSON(w, statusCode, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
