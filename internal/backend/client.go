package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meridian/internal/logging"
	"meridian/internal/risk"
)

// ErrUnavailable marks any request that could not complete: network failure,
// non-success status or an unreadable body.
var ErrUnavailable = errors.New("backend unavailable")

// StatusError is a non-success HTTP response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool { return target == ErrUnavailable }

const maxErrorBody = 512

// Client talks to the analysis backend's REST endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     *slog.Logger
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if raw == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", raw)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		log:     logging.New("backend"),
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

type Health struct {
	Status string `json:"status"`
	System string `json:"system,omitempty"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// Analysis fetches the full analysis snapshot. It is the durable source of
// truth used when the stream fails.
func (c *Client) Analysis(ctx context.Context) (risk.Snapshot, error) {
	var out risk.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/analysis", nil, &out); err != nil {
		return risk.Snapshot{}, err
	}
	if err := out.Validate(); err != nil {
		return risk.Snapshot{}, fmt.Errorf("%w: invalid analysis: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (c *Client) Simulate(ctx context.Context, req MutationRequest) (SimulationResponse, error) {
	var out SimulationResponse
	err := c.do(ctx, http.MethodPost, "/api/simulate", req, &out)
	return out, err
}

func (c *Client) MonteCarlo(ctx context.Context) (MonteCarlo, error) {
	var out MonteCarlo
	err := c.do(ctx, http.MethodGet, "/api/monte-carlo", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := c.baseURL.JoinPath(path).String()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
