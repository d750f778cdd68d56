/**
 * @description
 * This file defines the HTTP handlers for the withdrawal-account-service's API
 * endpoints. Handlers are responsible for parsing requests, calling the
 * appropriate service method, and mapping service errors to HTTP responses.
 *
 * @notes
 * - `POST /withdrawal-accounts` validates the body before authenticating the
 *   caller, so a malformed request never reaches the authenticator or the
 *   provider.
 * - Error bodies are always `{"error": ..., "message": ...}`.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameter handling.
 * - The service's internal packages for app logic and middleware.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/withdrawal-account-service/internal/app"
	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/internal/store"
	"github.com/transfa/withdrawal-account-service/pkg/middleware"
)

const maxRequestBodyBytes = 1 << 20

// WithdrawalAccountService is the application surface the handlers depend on.
type WithdrawalAccountService interface {
	Create(ctx context.Context, userID string, req *app.WithdrawalAccountRequest) (*domain.WithdrawalAccountSummary, error)
	List(ctx context.Context, userID string) ([]domain.WithdrawalAccountSummary, error)
	Get(ctx context.Context, userID, accountID string) (*domain.WithdrawalAccountSummary, error)
	SetDefault(ctx context.Context, userID, accountID string) (*domain.WithdrawalAccountSummary, error)
	Delete(ctx context.Context, userID, accountID string) error
}

// WithdrawalAccountHandler holds the dependencies for withdrawal account handlers.
type WithdrawalAccountHandler struct {
	service WithdrawalAccountService
	auth    middleware.Authenticator
}

// NewWithdrawalAccountHandler creates a new WithdrawalAccountHandler.
func NewWithdrawalAccountHandler(service WithdrawalAccountService, auth middleware.Authenticator) *WithdrawalAccountHandler {
	return &WithdrawalAccountHandler{service: service, auth: auth}
}

// BankTypesResponse lists the payout rails available in a country.
type BankTypesResponse struct {
	CountryCode string            `json:"country_code"`
	BankTypes   []domain.BankType `json:"bank_types"`
}

// ListBankTypes handles `GET /bank-types?country_code=XX`.
func (h *WithdrawalAccountHandler) ListBankTypes(w http.ResponseWriter, r *http.Request) {
	countryCode := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country_code")))
	bankTypes := domain.BankTypesForCountry(countryCode)
	if len(bankTypes) == 0 {
		writeError(w, http.StatusBadRequest, "No bank types found", "No bank types found for the specified country code.")
		return
	}
	writeJSON(w, http.StatusOK, BankTypesResponse{CountryCode: countryCode, BankTypes: bankTypes})
}

// CreateWithdrawalAccount handles `POST /withdrawal-accounts`.
func (h *WithdrawalAccountHandler) CreateWithdrawalAccount(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "The request body could not be read.")
		return
	}

	req, err := app.ParseWithdrawalAccountRequest(body)
	if err != nil {
		h.writeParseError(w, err)
		return
	}
	log.Printf("level=info component=api msg=\"withdrawal account request validated\" bank_type=%s country=%s currency=%s", req.BankType, req.CountryCode, req.CurrencyCode)

	userID, err := h.auth.Authenticate(r)
	if err != nil {
		log.Printf("level=info component=api msg=\"unauthenticated withdrawal account request\" err=%v", err)
		writeError(w, http.StatusUnauthorized, "Not authenticated", "You must be signed in to add a withdrawal account.")
		return
	}

	summary, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

func (h *WithdrawalAccountHandler) writeParseError(w http.ResponseWriter, err error) {
	var reqErr *app.RequestError
	switch {
	case errors.Is(err, app.ErrNoBankTypes):
		writeError(w, http.StatusBadRequest, "No bank types found", "No bank types found for the specified country code.")
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error parsing the body (%s)", reqErr.Path), reqErr.Message)
	default:
		writeError(w, http.StatusBadRequest, "Invalid request body", "The request body must be a JSON object.")
	}
}

// ListWithdrawalAccounts handles `GET /withdrawal-accounts`.
func (h *WithdrawalAccountHandler) ListWithdrawalAccounts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated", "You must be signed in to perform this action.")
		return
	}

	accounts, err := h.service.List(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"list withdrawal accounts failed\" user_id=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", "Could not load withdrawal accounts.")
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// GetWithdrawalAccount handles `GET /withdrawal-accounts/{id}`.
func (h *WithdrawalAccountHandler) GetWithdrawalAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated", "You must be signed in to perform this action.")
		return
	}

	summary, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// SetDefaultWithdrawalAccount handles `PUT /withdrawal-accounts/{id}/default`.
func (h *WithdrawalAccountHandler) SetDefaultWithdrawalAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated", "You must be signed in to perform this action.")
		return
	}

	summary, err := h.service.SetDefault(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// DeleteWithdrawalAccount handles `DELETE /withdrawal-accounts/{id}`.
func (h *WithdrawalAccountHandler) DeleteWithdrawalAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated", "You must be signed in to perform this action.")
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps application and store errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var providerErr *app.ProviderError
	var persistenceErr *app.PersistenceError

	switch {
	case errors.Is(err, app.ErrAccessTokenUnavailable):
		writeError(w, http.StatusInternalServerError, "Failed to get access token for Flutterwave.", "The payout provider is unavailable. Please try again later.")
	case errors.As(err, &providerErr):
		writeError(w, http.StatusInternalServerError, "Failed to create transfer recipient", providerErr.Message)
	case errors.As(err, &persistenceErr):
		writeError(w, http.StatusConflict, "Failed to save account", persistenceErr.Message)
	case errors.Is(err, store.ErrWithdrawalAccountNotFound):
		writeError(w, http.StatusNotFound, "Withdrawal account not found", "No withdrawal account with this id exists for the user.")
	case errors.Is(err, store.ErrWithdrawalAccountNotVerified):
		writeError(w, http.StatusConflict, "Withdrawal account not verified", "Only verified withdrawal accounts can be made the default.")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "Something went wrong. Please try again.")
	}
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, errMsg, message string) {
	writeJSON(w, statusCode, map[string]string{"error": errMsg, "message": message})
}
