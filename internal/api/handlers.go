package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohamedlmalki/klaviyo/internal/account"
	"github.com/mohamedlmalki/klaviyo/internal/klaviyo"
)

// Version is the service version reported by /health
const Version = "0.1.0"

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the response for POST /api/check-status and
// POST /api/add-subscriber. StatusCode mirrors the upstream status on
// failure so the UI can tell credential problems from server errors.
type StatusResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// CheckStatusRequest is the request body for POST /api/check-status
type CheckStatusRequest struct {
	APIKey string `json:"apiKey"`
}

// AddSubscriberRequest is the request body for POST /api/add-subscriber
type AddSubscriberRequest struct {
	Email     string `json:"email"`
	ListID    string `json:"listId"`
	AccountID string `json:"accountId"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Accounts int    `json:"accounts"`
}

// handleListAccounts handles GET /api/accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("failed to read accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read accounts file.")
		return
	}

	if s.metrics != nil {
		s.metrics.AccountsTotal.Set(float64(len(accounts)))
	}
	s.sendJSON(w, http.StatusOK, accounts)
}

// handleCreateAccount handles POST /api/accounts
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var acc account.Account
	if err := json.NewDecoder(r.Body).Decode(&acc); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if acc.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if acc.APIKey == "" {
		s.sendError(w, http.StatusBadRequest, "apiKey is required")
		return
	}

	created, err := s.store.Create(r.Context(), acc)
	if err != nil {
		s.logger.Error("failed to add account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to add account.")
		return
	}

	s.logger.Info("account created", "id", created.ID, "name", created.Name)
	s.sendJSON(w, http.StatusCreated, created)
}

// handleUpdateAccount handles PUT /api/accounts/{id}
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var upd account.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	merged, err := s.store.Update(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Account not found")
			return
		}
		s.logger.Error("failed to update account", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update account.")
		return
	}

	s.logger.Info("account updated", "id", id)
	s.sendJSON(w, http.StatusOK, merged)
}

// handleDeleteAccount handles DELETE /api/accounts/{id}. Deleting an
// unknown id is a no-op success.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete account", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete account.")
		return
	}

	s.logger.Info("account deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckStatus handles POST /api/check-status
func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	var req CheckStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.APIKey == "" {
		s.sendJSON(w, http.StatusBadRequest, StatusResponse{
			Success: false,
			Message: "apiKey is required",
		})
		return
	}

	start := time.Now()
	err := s.upstream.VerifyKey(r.Context(), req.APIKey)
	s.trackUpstream("check_status", start, err)
	if err != nil {
		s.sendUpstreamError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, StatusResponse{
		Success: true,
		Message: "Successfully connected to Klaviyo.",
	})
}

// handleLists handles GET /api/lists/{accountId}
func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	acc, err := s.store.Get(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Account not found")
			return
		}
		s.logger.Error("failed to read accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read accounts file.")
		return
	}

	start := time.Now()
	lists, err := s.upstream.Lists(r.Context(), acc.APIKey)
	s.trackUpstream("fetch_lists", start, err)
	if err != nil {
		apiErr := upstreamError(err)
		s.logger.Error("klaviyo API error", "account_id", accountID, "status", apiErr.StatusCode, "message", apiErr.Message)
		s.sendError(w, apiErr.StatusCode, apiErr.Message)
		return
	}

	if lists == nil {
		lists = []klaviyo.List{}
	}
	s.sendJSON(w, http.StatusOK, lists)
}

// handleAddSubscriber handles POST /api/add-subscriber
func (s *Server) handleAddSubscriber(w http.ResponseWriter, r *http.Request) {
	var req AddSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.ListID == "" || req.AccountID == "" {
		s.sendError(w, http.StatusBadRequest, "Email, List ID, and Account ID are required")
		return
	}

	acc, err := s.store.Get(r.Context(), req.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Account not found")
			return
		}
		s.logger.Error("failed to read accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read accounts file.")
		return
	}

	start := time.Now()
	err = s.upstream.Subscribe(r.Context(), acc.APIKey, req.Email, req.ListID)
	s.trackUpstream("subscribe", start, err)
	if err != nil {
		s.sendUpstreamError(w, err)
		return
	}

	s.logger.Info("subscriber added", "email", req.Email, "list_id", req.ListID, "account_id", req.AccountID)
	s.sendJSON(w, http.StatusOK, StatusResponse{
		Success: true,
		Message: "Successfully added " + req.Email + " to the list.",
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	accounts, _ := s.store.List(r.Context())

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Uptime:   time.Since(s.startTime).String(),
		Accounts: len(accounts),
	})
}

// upstreamError extracts the normalized APIError. The klaviyo client
// returns *APIError for every upstream failure; anything else is a
// programming error on our side, reported as a plain 500.
func upstreamError(err error) *klaviyo.APIError {
	var apiErr *klaviyo.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &klaviyo.APIError{
		StatusCode: http.StatusInternalServerError,
		Message:    err.Error(),
	}
}

// sendUpstreamError mirrors an upstream failure with its status code
func (s *Server) sendUpstreamError(w http.ResponseWriter, err error) {
	apiErr := upstreamError(err)
	s.logger.Error("klaviyo API error", "status", apiErr.StatusCode, "message", apiErr.Message)
	s.sendJSON(w, apiErr.StatusCode, StatusResponse{
		Success:    false,
		Message:    apiErr.Message,
		StatusCode: apiErr.StatusCode,
	})
}

// trackUpstream records the outcome of one upstream call
func (s *Server) trackUpstream(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := http.StatusOK
	if err != nil {
		status = upstreamError(err).StatusCode
	}
	s.metrics.TrackUpstreamCall(operation, status, time.Since(start))
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
