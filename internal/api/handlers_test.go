package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohamedlmalki/klaviyo/internal/account"
	"github.com/mohamedlmalki/klaviyo/internal/config"
	"github.com/mohamedlmalki/klaviyo/internal/klaviyo"
)

// mockStore implements AccountStore for testing
type mockStore struct {
	accounts []account.Account
	failErr  error
}

func (m *mockStore) List(ctx context.Context) ([]account.Account, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	return m.accounts, nil
}

func (m *mockStore) Create(ctx context.Context, acc account.Account) (account.Account, error) {
	if m.failErr != nil {
		return account.Account{}, m.failErr
	}
	if acc.ID == "" {
		acc.ID = "generated-id"
	}
	m.accounts = append(m.accounts, acc)
	return acc, nil
}

func (m *mockStore) Update(ctx context.Context, id string, upd account.Update) (account.Account, error) {
	if m.failErr != nil {
		return account.Account{}, m.failErr
	}
	for i := range m.accounts {
		if m.accounts[i].ID == id {
			upd.Apply(&m.accounts[i])
			return m.accounts[i], nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	if m.failErr != nil {
		return m.failErr
	}
	for i := range m.accounts {
		if m.accounts[i].ID == id {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, id string) (account.Account, error) {
	if m.failErr != nil {
		return account.Account{}, m.failErr
	}
	for _, acc := range m.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

// mockUpstream implements Upstream for testing
type mockUpstream struct {
	verifyErr    error
	lists        []klaviyo.List
	listsErr     error
	subscribeErr error

	verifyKeys     []string
	subscribeCalls []string
}

func (m *mockUpstream) VerifyKey(ctx context.Context, apiKey string) error {
	m.verifyKeys = append(m.verifyKeys, apiKey)
	return m.verifyErr
}

func (m *mockUpstream) Lists(ctx context.Context, apiKey string) ([]klaviyo.List, error) {
	if m.listsErr != nil {
		return nil, m.listsErr
	}
	return m.lists, nil
}

func (m *mockUpstream) Subscribe(ctx context.Context, apiKey, email, listID string) error {
	m.subscribeCalls = append(m.subscribeCalls, email+"/"+listID)
	return m.subscribeErr
}

func setupTestServer() (*Server, *mockStore, *mockUpstream) {
	store := &mockStore{}
	upstream := &mockUpstream{}
	cfg := &config.ServerConfig{
		ListenAddr:   ":3001",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(store, upstream, cfg, nil, logger)
	return server, store, upstream
}

func doRequest(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reqBody)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestListAccounts(t *testing.T) {
	server, store, _ := setupTestServer()
	store.accounts = []account.Account{
		{ID: "a1", Name: "First", APIKey: "pk_1"},
		{ID: "a2", Name: "Second", APIKey: "pk_2"},
	}

	w := doRequest(server, "GET", "/api/accounts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var accounts []account.Account
	if err := json.NewDecoder(w.Body).Decode(&accounts); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "a1" || accounts[1].ID != "a2" {
		t.Errorf("accounts = %+v", accounts)
	}
}

func TestListAccountsStoreFailure(t *testing.T) {
	server, store, _ := setupTestServer()
	store.failErr = io.ErrUnexpectedEOF

	w := doRequest(server, "GET", "/api/accounts", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestCreateAccount(t *testing.T) {
	server, store, _ := setupTestServer()

	acc := account.Account{ID: "a1", Name: "Test", APIKey: "pk_test"}
	w := doRequest(server, "POST", "/api/accounts", acc)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusCreated)
	}

	var created account.Account
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created != acc {
		t.Errorf("created = %+v, want %+v", created, acc)
	}
	if len(store.accounts) != 1 {
		t.Errorf("store has %d accounts, want 1", len(store.accounts))
	}
}

func TestCreateAccountValidation(t *testing.T) {
	tests := []struct {
		name string
		body account.Account
	}{
		{"missing name", account.Account{APIKey: "pk"}},
		{"missing apiKey", account.Account{Name: "Test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, _ := setupTestServer()
			w := doRequest(server, "POST", "/api/accounts", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestUpdateAccount(t *testing.T) {
	server, store, _ := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Before", APIKey: "pk_old"}}

	w := doRequest(server, "PUT", "/api/accounts/a1", map[string]string{"apiKey": "pk_new"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var merged account.Account
	if err := json.NewDecoder(w.Body).Decode(&merged); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := account.Account{ID: "a1", Name: "Before", APIKey: "pk_new"}
	if merged != want {
		t.Errorf("merged = %+v, want %+v", merged, want)
	}
}

func TestUpdateAccountNotFound(t *testing.T) {
	server, _, _ := setupTestServer()

	w := doRequest(server, "PUT", "/api/accounts/missing", map[string]string{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "Account not found" {
		t.Errorf("error = %q, want %q", resp.Error, "Account not found")
	}
}

func TestDeleteAccount(t *testing.T) {
	server, store, _ := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Test", APIKey: "pk"}}

	w := doRequest(server, "DELETE", "/api/accounts/a1", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(store.accounts) != 0 {
		t.Errorf("store has %d accounts, want 0", len(store.accounts))
	}
}

func TestDeleteUnknownAccount(t *testing.T) {
	server, _, _ := setupTestServer()

	w := doRequest(server, "DELETE", "/api/accounts/missing", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestCheckStatus(t *testing.T) {
	server, _, upstream := setupTestServer()

	w := doRequest(server, "POST", "/api/check-status", CheckStatusRequest{APIKey: "pk_good"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp StatusResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if len(upstream.verifyKeys) != 1 || upstream.verifyKeys[0] != "pk_good" {
		t.Errorf("verify calls = %v", upstream.verifyKeys)
	}
}

func TestCheckStatusMissingKey(t *testing.T) {
	server, _, upstream := setupTestServer()

	w := doRequest(server, "POST", "/api/check-status", CheckStatusRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(upstream.verifyKeys) != 0 {
		t.Errorf("upstream was called %d times, want 0", len(upstream.verifyKeys))
	}
}

func TestCheckStatusInvalidKey(t *testing.T) {
	server, _, upstream := setupTestServer()
	upstream.verifyErr = &klaviyo.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid key"}

	w := doRequest(server, "POST", "/api/check-status", CheckStatusRequest{APIKey: "bad-key"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	var resp StatusResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Success {
		t.Error("success = true, want false")
	}
	if resp.Message != "Invalid key" {
		t.Errorf("message = %q, want %q", resp.Message, "Invalid key")
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("statusCode = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestFetchLists(t *testing.T) {
	server, store, upstream := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Test", APIKey: "pk"}}
	upstream.lists = []klaviyo.List{{ID: "L1", Name: "Newsletter"}}

	w := doRequest(server, "GET", "/api/lists/a1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var lists []klaviyo.List
	json.NewDecoder(w.Body).Decode(&lists)
	if len(lists) != 1 || lists[0] != (klaviyo.List{ID: "L1", Name: "Newsletter"}) {
		t.Errorf("lists = %+v", lists)
	}
}

func TestFetchListsUnknownAccount(t *testing.T) {
	server, _, _ := setupTestServer()

	w := doRequest(server, "GET", "/api/lists/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "Account not found" {
		t.Errorf("error = %q, want %q", resp.Error, "Account not found")
	}
}

func TestFetchListsUpstreamFailure(t *testing.T) {
	server, store, upstream := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Test", APIKey: "pk"}}
	upstream.listsErr = &klaviyo.APIError{StatusCode: http.StatusForbidden, Message: "Missing permission"}

	w := doRequest(server, "GET", "/api/lists/a1", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusForbidden)
	}

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "Missing permission" {
		t.Errorf("error = %q, want %q", resp.Error, "Missing permission")
	}
}

func TestAddSubscriber(t *testing.T) {
	server, store, upstream := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Test", APIKey: "pk"}}

	w := doRequest(server, "POST", "/api/add-subscriber", AddSubscriberRequest{
		Email:     "x@y.com",
		ListID:    "list1",
		AccountID: "a1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp StatusResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.Message != "Successfully added x@y.com to the list." {
		t.Errorf("message = %q", resp.Message)
	}
	if len(upstream.subscribeCalls) != 1 || upstream.subscribeCalls[0] != "x@y.com/list1" {
		t.Errorf("subscribe calls = %v", upstream.subscribeCalls)
	}
}

func TestAddSubscriberMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body AddSubscriberRequest
	}{
		{"only email", AddSubscriberRequest{Email: "x@y.com"}},
		{"missing email", AddSubscriberRequest{ListID: "list1", AccountID: "a1"}},
		{"missing listId", AddSubscriberRequest{Email: "x@y.com", AccountID: "a1"}},
		{"empty body", AddSubscriberRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, upstream := setupTestServer()
			w := doRequest(server, "POST", "/api/add-subscriber", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(upstream.subscribeCalls) != 0 {
				t.Errorf("upstream was called %d times, want 0", len(upstream.subscribeCalls))
			}
		})
	}
}

func TestAddSubscriberUnknownAccount(t *testing.T) {
	server, _, _ := setupTestServer()

	w := doRequest(server, "POST", "/api/add-subscriber", AddSubscriberRequest{
		Email:     "x@y.com",
		ListID:    "list1",
		AccountID: "does-not-exist",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAddSubscriberUpstreamFailure(t *testing.T) {
	server, store, upstream := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Test", APIKey: "pk"}}
	upstream.subscribeErr = &klaviyo.APIError{StatusCode: http.StatusTooManyRequests, Message: "Rate limited"}

	w := doRequest(server, "POST", "/api/add-subscriber", AddSubscriberRequest{
		Email:     "x@y.com",
		ListID:    "list1",
		AccountID: "a1",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	var resp StatusResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Success {
		t.Error("success = true, want false")
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("statusCode = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, store, _ := setupTestServer()
	store.accounts = []account.Account{{ID: "a1", Name: "Test", APIKey: "pk"}}

	w := doRequest(server, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Accounts != 1 {
		t.Errorf("Accounts = %d, want 1", resp.Accounts)
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _, _ := setupTestServer()

	w := doRequest(server, "OPTIONS", "/api/accounts", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
