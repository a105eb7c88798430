// Package benchling is a small client for the Benchling App Canvas API.
//
// It covers the two calls an interactive canvas needs: creating the canvas
// when the host asks for one, and replacing its blocks after a user
// interaction. Requests are authenticated with the app's bearer token.
//
// # Usage
//
//	client, err := benchling.NewClient(benchling.Config{
//	    BaseURL: "https://tenant.benchling.com",
//	    Token:   token,
//	})
//
//	handle, err := client.CreateCanvas(ctx, benchling.CreateCanvasRequest{
//	    FeatureID: "rps_canvas",
//	    Blocks:    canvas.Render(canvas.Initial{}),
//	})
//
// The client never retries. Callers decide whether a failure is fatal.
package benchling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MJE43/rps-canvas/internal/canvas"
)

const (
	canvasesPath = "/api/v2/app-canvases"

	// DefaultTimeout bounds each create/update call.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 4 << 10
)

// Config holds configuration for the Benchling client.
type Config struct {
	// BaseURL is the tenant URL, e.g. "https://tenant.benchling.com". Required.
	BaseURL string

	// Token is the bearer token of the app installation. Required.
	Token string

	// Timeout bounds each request. Defaults to 10 seconds.
	Timeout time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Its own Timeout is left untouched; Timeout above is applied per request.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64

	// RateBurst is the limiter burst size. Defaults to 1 when RateLimit is set.
	RateBurst int
}

// Client issues canvas calls against one tenant.
type Client struct {
	baseURL   string
	token     string
	timeout   time.Duration
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("benchling: base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("benchling: invalid base URL %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("benchling: token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		baseURL:   base,
		token:     cfg.Token,
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		http:      httpClient,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// BaseURL returns the normalized tenant URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// CreateCanvasRequest is the body of a create call.
type CreateCanvasRequest struct {
	FeatureID  string
	ResourceID string
	Blocks     []canvas.Element
}

// Canvas is the handle returned by the API.
type Canvas struct {
	ID         string           `json:"id"`
	FeatureID  string           `json:"featureId,omitempty"`
	ResourceID string           `json:"resourceId,omitempty"`
	Enabled    bool             `json:"enabled"`
	Blocks     []canvas.Element `json:"-"`
}

type createBody struct {
	Blocks     []canvas.Element `json:"blocks"`
	Enabled    bool             `json:"enabled"`
	FeatureID  string           `json:"featureId"`
	ResourceID string           `json:"resourceId,omitempty"`
}

type updateBody struct {
	Blocks  []canvas.Element `json:"blocks"`
	Enabled bool             `json:"enabled"`
}

// CreateCanvas posts a new, enabled canvas for a feature.
func (c *Client) CreateCanvas(ctx context.Context, req CreateCanvasRequest) (*Canvas, error) {
	body := createBody{
		Blocks:     nonNil(req.Blocks),
		Enabled:    true,
		FeatureID:  req.FeatureID,
		ResourceID: req.ResourceID,
	}
	handle := &Canvas{FeatureID: req.FeatureID, ResourceID: req.ResourceID, Enabled: true}
	if err := c.do(ctx, "create", http.MethodPost, canvasesPath, body, handle); err != nil {
		return nil, err
	}
	handle.Blocks = body.Blocks
	return handle, nil
}

// UpdateCanvas replaces the blocks of an existing canvas and keeps it enabled.
func (c *Client) UpdateCanvas(ctx context.Context, canvasID string, blocks []canvas.Element) (*Canvas, error) {
	if strings.TrimSpace(canvasID) == "" {
		return nil, errors.New("benchling: canvas id is required")
	}
	body := updateBody{Blocks: nonNil(blocks), Enabled: true}
	handle := &Canvas{ID: canvasID, Enabled: true}
	path := canvasesPath + "/" + url.PathEscape(canvasID)
	if err := c.do(ctx, "update", http.MethodPatch, path, body, handle); err != nil {
		return nil, err
	}
	if handle.ID == "" {
		handle.ID = canvasID
	}
	handle.Blocks = body.Blocks
	return handle, nil
}

// do sends one JSON request and decodes a JSON success body into out.
// A success body that is empty or not JSON leaves out untouched.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &UnavailableError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("benchling: marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("benchling: create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxErrorBody)}
	}

	if len(bytes.TrimSpace(respBody)) > 0 {
		_ = json.Unmarshal(respBody, out)
	}
	return nil
}

func nonNil(blocks []canvas.Element) []canvas.Element {
	if blocks == nil {
		return []canvas.Element{}
	}
	return blocks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
