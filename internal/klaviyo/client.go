package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the public Klaviyo API endpoint.
	DefaultBaseURL = "https://a.klaviyo.com"

	// DefaultRevision is the API revision every call is pinned to.
	DefaultRevision = "2023-02-22"
)

const fallbackMessage = "Invalid API Key or connection issue."

// Client is a Klaviyo API client. Accounts own their keys, so the key
// is passed per call instead of being fixed at construction.
type Client struct {
	baseURL    string
	revision   string
	httpClient *http.Client
}

// NewClient creates a new Klaviyo API client. Empty baseURL or revision
// fall back to the public endpoint and the pinned revision.
func NewClient(baseURL, revision string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if revision == "" {
		revision = DefaultRevision
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		revision: revision,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do performs an HTTP request against the Klaviyo API. Any failure,
// transport or upstream, comes back as *APIError.
func (c *Client) do(ctx context.Context, method, path, apiKey string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Klaviyo-API-Key "+apiKey)
	req.Header.Set("revision", c.revision)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No upstream status to mirror, normalize to 500.
		return &APIError{StatusCode: http.StatusInternalServerError, Message: fallbackMessage}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return normalizeError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// normalizeError turns a non-2xx upstream response into an APIError.
// Fallback chain: first error detail from the body, else the generic
// message; the upstream status is carried through as-is.
func normalizeError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    fallbackMessage,
	}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if len(body.Errors) > 0 && body.Errors[0].Detail != "" {
			apiErr.Message = body.Errors[0].Detail
		}
	}

	return apiErr
}

// VerifyKey checks that the key can authenticate by issuing a read-only
// lists call. A nil error means the key works.
func (c *Client) VerifyKey(ctx context.Context, apiKey string) error {
	return c.do(ctx, http.MethodGet, "/api/lists", apiKey, nil, nil)
}

// Lists fetches the account's mailing lists.
func (c *Client) Lists(ctx context.Context, apiKey string) ([]List, error) {
	var coll listCollection
	if err := c.do(ctx, http.MethodGet, "/api/lists", apiKey, nil, &coll); err != nil {
		return nil, err
	}

	lists := make([]List, len(coll.Data))
	for i, item := range coll.Data {
		lists[i] = List{ID: item.ID, Name: item.Attributes.Name}
	}
	return lists, nil
}

// Subscribe adds an email address to a list in two steps: upsert the
// profile, then attach it to the list. The upsert also updates an
// existing profile, and attaching an already subscribed profile is a
// no-op on the Klaviyo side, so the whole operation is idempotent. A
// failed attach does not roll back the upsert.
func (c *Client) Subscribe(ctx context.Context, apiKey, email, listID string) error {
	profile := profileRequest{
		Data: profileData{
			Type:       "profile",
			Attributes: profileAttributes{Email: email},
		},
	}

	var created profileResponse
	if err := c.do(ctx, http.MethodPost, "/api/profiles", apiKey, profile, &created); err != nil {
		return err
	}

	rel := relationshipRequest{
		Data: []relationshipMember{
			{Type: "profile", ID: created.Data.ID},
		},
	}

	path := "/api/lists/" + url.PathEscape(listID) + "/relationships/profiles"
	return c.do(ctx, http.MethodPost, path, apiKey, rel, nil)
}
