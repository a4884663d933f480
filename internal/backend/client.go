// Package backend is the HTTP client for the policy ingestion and claim analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/underwriter/internal/models"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response body is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to the backend over HTTP. No call is retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the transport timeout. Zero leaves requests unbounded.
// A client passed with WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets a logger for request diagnostics (debug level).
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var h models.Health
	if err := c.do(ctx, "health", http.MethodGet, "/health", "", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Policies calls GET /policies.
func (c *Client) Policies(ctx context.Context) ([]models.PolicySummary, error) {
	var policies []models.PolicySummary
	if err := c.do(ctx, "list policies", http.MethodGet, "/policies", "", nil, &policies); err != nil {
		return nil, err
	}
	return policies, nil
}

// Policy calls GET /policies/{id}.
func (c *Client) Policy(ctx context.Context, policyID string) (*models.PolicySummary, error) {
	var p models.PolicySummary
	if err := c.do(ctx, "get policy", http.MethodGet, "/policies/"+url.PathEscape(policyID), "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ingest uploads a policy document as multipart field "file" under policyID.
func (c *Client) Ingest(ctx context.Context, policyID, filename string, content io.Reader) (*models.IngestResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("ingest: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ingest: close form: %w", err)
	}
	path := "/ingest?" + url.Values{"policy_id": {policyID}}.Encode()
	var result models.IngestResult
	if err := c.do(ctx, "ingest", http.MethodPost, path, mw.FormDataContentType(), &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Analyze submits a claim for analysis against the whole ingested corpus.
func (c *Client) Analyze(ctx context.Context, claimText string) (*models.AnalysisResult, error) {
	payload, err := json.Marshal(models.AnalysisRequest{PolicyID: models.GlobalScope, ClaimText: claimText})
	if err != nil {
		return nil, fmt.Errorf("analyze: encode request: %w", err)
	}
	var result models.AnalysisResult
	if err := c.do(ctx, "analyze", http.MethodPost, "/analyze", "application/json", bytes.NewReader(payload), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	log := c.logger.With(zap.String("op", op), zap.String("request_id", requestID))
	log.Debug("backend request", zap.String("method", method), zap.String("path", path))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("backend transport error", zap.Error(err))
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Debug("backend rejected request", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Debug("backend response undecodable", zap.Error(err))
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	log.Debug("backend response", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))
	return nil
}
