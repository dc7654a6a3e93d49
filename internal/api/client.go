// Package api is the REST client for the quoting server. The server is
// the system of record; this client only speaks the endpoint contract the
// sync engine drains the mutation queue against.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sitequote/sitequote/internal/entity"
)

// Endpoints by entity kind. Floor plans upload through their own path
// because they carry file bytes alongside metadata.
const (
	EndpointCustomers  = "/api/customers"
	EndpointQuotes     = "/api/quotes"
	EndpointFloorPlans = "/api/floorplans"
)

// EndpointFor resolves the REST endpoint for an entity kind.
func EndpointFor(kind entity.Kind) (string, bool) {
	switch kind {
	case entity.KindCustomer:
		return EndpointCustomers, true
	case entity.KindQuote:
		return EndpointQuotes, true
	case entity.KindFloorPlan:
		return EndpointFloorPlans, true
	}
	return "", false
}

// Error is a non-2xx server response.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, body)
}

// Customer is a server-owned customer record as returned by the API.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Quote is a server-owned quote record as returned by the API.
type Quote struct {
	ID            string  `json:"id"`
	CustomerID    string  `json:"customerId"`
	Trade         string  `json:"trade"`
	Materials     string  `json:"materials,omitempty"`
	MaterialsCost float64 `json:"materialsCost"`
	LaborCost     float64 `json:"laborCost"`
	Markup        float64 `json:"markup"`
	Total         float64 `json:"total"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt,omitempty"`
}

// Client talks to the quoting API over HTTP. Every request carries a
// bounded timeout so a dead network classifies as a push failure instead
// of hanging the sync cycle.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// DefaultTimeout bounds each request issued by the client.
const DefaultTimeout = 30 * time.Second

// New creates a Client for the given API base URL. token may be empty;
// when set it is sent as a bearer credential.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured API base.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// parseID extracts the server-assigned identifier from a response body of
// shape { "id": ..., ...fields }.
func parseID(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &Error{Status: resp.StatusCode, Body: string(body)}
	}
	var record struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if record.ID == "" {
		return "", fmt.Errorf("response missing server id")
	}
	return record.ID, nil
}

// Create POSTs payload to endpoint and returns the server-assigned id.
// The payload's localId doubles as the server-side idempotency key, so
// retrying a create whose response was lost resolves to the same record.
func (c *Client) Create(ctx context.Context, endpoint string, payload []byte) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	return parseID(resp)
}

// Update PATCHes payload to endpoint/{serverID} and returns the id echoed
// by the server.
func (c *Client) Update(ctx context.Context, endpoint, serverID string, payload []byte) (string, error) {
	resp, err := c.do(ctx, http.MethodPatch, endpoint+"/"+serverID, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	return parseID(resp)
}

// Delete removes endpoint/{serverID}. A 404 counts as success: the record
// is gone either way, and delete retries must stay idempotent.
func (c *Client) Delete(ctx context.Context, endpoint, serverID string) error {
	resp, err := c.do(ctx, http.MethodDelete, endpoint+"/"+serverID, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// ListCustomers fetches the authoritative customer list.
func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	resp, err := c.do(ctx, http.MethodGet, EndpointCustomers, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Status: resp.StatusCode, Body: string(body)}
	}
	var customers []Customer
	if err := json.NewDecoder(resp.Body).Decode(&customers); err != nil {
		return nil, fmt.Errorf("decoding customer list: %w", err)
	}
	return customers, nil
}

// ListQuotes fetches the authoritative quote list.
func (c *Client) ListQuotes(ctx context.Context) ([]Quote, error) {
	resp, err := c.do(ctx, http.MethodGet, EndpointQuotes, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Status: resp.StatusCode, Body: string(body)}
	}
	var quotes []Quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("decoding quote list: %w", err)
	}
	return quotes, nil
}

// UploadFloorPlan POSTs plan metadata plus the file bytes as a multipart
// form and returns the server-assigned id.
func (c *Client) UploadFloorPlan(ctx context.Context, plan entity.FloorPlan, file []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encoding plan metadata: %w", err)
	}
	if err := w.WriteField("metadata", string(meta)); err != nil {
		return "", fmt.Errorf("writing metadata field: %w", err)
	}
	part, err := w.CreateFormFile("file", plan.FileName)
	if err != nil {
		return "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return "", fmt.Errorf("writing file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, EndpointFloorPlans, &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	return parseID(resp)
}
