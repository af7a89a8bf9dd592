package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Endpoint names understood by the content service.
const (
	EndpointScrapeWebsite = "scrape-website"
	EndpointAddText       = "add-text"
	EndpointChat          = "chat"
)

// RequestIDHeader carries a per-request identifier for correlating client and server logs.
const RequestIDHeader = "X-Request-ID"

// Client sends JSON requests to the content service over HTTP.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets a bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client targeting the given service base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a parsed JSON response body.
type Response struct {
	StatusCode int
	Body       any
}

// String returns the named field when the body is a JSON object holding a
// non-empty string under that key.
func (r Response) String(field string) (string, bool) {
	obj, ok := r.Body.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := obj[field].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Send POSTs payload as JSON to the named endpoint and parses the reply.
// Any response whose body parses as JSON is returned, including HTTP error
// statuses; callers inspect the body. Transport and parse failures are
// returned as *NetworkError.
func (c *Client) Send(ctx context.Context, endpoint string, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &NetworkError{Endpoint: endpoint, Op: OpEncode, Err: err}
	}

	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, &NetworkError{Endpoint: endpoint, Op: OpSend, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	reqID := uuid.New().String()
	req.Header.Set(RequestIDHeader, reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("sending request", "endpoint", endpoint, "request_id", reqID, "bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, &NetworkError{Endpoint: endpoint, Op: OpSend, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &NetworkError{Endpoint: endpoint, Op: OpReceive, Err: err}
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &NetworkError{
			Endpoint: endpoint,
			Op:       OpDecode,
			Err:      fmt.Errorf("invalid JSON in response (HTTP %d): %w", resp.StatusCode, err),
		}
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("service returned error status", "endpoint", endpoint, "request_id", reqID, "status", resp.StatusCode)
	} else {
		c.logger.Debug("received response", "endpoint", endpoint, "request_id", reqID, "status", resp.StatusCode)
	}

	return Response{StatusCode: resp.StatusCode, Body: parsed}, nil
}

// HealthStatus mirrors the JSON returned by GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("creating health request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("service not reachable at %s (%w)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, fmt.Errorf("health: unexpected status %d", resp.StatusCode)
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("decoding health response: %w", err)
	}
	return hs, nil
}
