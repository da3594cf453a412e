// Package client provides a Go client for the embedreduce HTTP API.
//
// It wraps POST /pca together with the schema and health endpoints, and turns
// {"error": ...} answers into *APIError values whether the server reports
// them with a 4xx/5xx status or, under the lenient policy, with 200.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// --- Custom Errors ---

// APIError represents an {"error": ...} answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Request/Response Structs ---

type pcaRequest struct {
	Embeddings  [][]float64 `json:"embeddings"`
	NComponents int         `json:"n_components,omitempty"`
}

type errorResponse struct {
	Error *string `json:"error"`
}

// Health models the GET /healthz answer.
type Health struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	DefaultComponents int    `json:"default_components"`
	MaxConcurrent     int    `json:"max_concurrent"`
	CPU               struct {
		Brand        string `json:"brand"`
		Arch         string `json:"arch"`
		LogicalCores int    `json:"logical_cores"`
	} `json:"cpu"`
}

// --- Client ---

// Client talks to an embedreduce server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reduce sends embeddings to POST /pca and returns the reduced vectors.
// nComponents <= 0 leaves the choice to the server default.
func (c *Client) Reduce(ctx context.Context, embeddings [][]float64, nComponents int) ([][]float64, error) {
	body, err := c.jsonRequest(ctx, http.MethodPost, "/pca", pcaRequest{
		Embeddings:  embeddings,
		NComponents: max(nComponents, 0),
	})
	if err != nil {
		return nil, err
	}

	var reduced [][]float64
	if err := json.Unmarshal(body, &reduced); err != nil {
		return nil, fmt.Errorf("failed to decode reduced embeddings: %w", err)
	}
	return reduced, nil
}

// Schema fetches the JSON Schema the server validates POST /pca bodies against.
func (c *Client) Schema(ctx context.Context) (json.RawMessage, error) {
	body, err := c.jsonRequest(ctx, http.MethodGet, "/pca/schema", nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Health fetches GET /healthz.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	body, err := c.jsonRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &h, nil
}

// jsonRequest executes a request and returns the raw body of a successful answer.
// A JSON object carrying an "error" key is an error regardless of the status code.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if apiErr := parseAPIError(resp.StatusCode, respBody); apiErr != nil {
		return nil, apiErr
	}
	return respBody, nil
}

func parseAPIError(status int, body []byte) *APIError {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var errResp errorResponse
		if json.Unmarshal(trimmed, &errResp) == nil && errResp.Error != nil {
			return &APIError{StatusCode: status, Message: *errResp.Error}
		}
	}
	if status >= 400 {
		return &APIError{StatusCode: status, Message: string(trimmed)}
	}
	return nil
}
