package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	limiter *rate.Limiter
	group   singleflight.Group
	log     *slog.Logger
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRateLimit caps outgoing requests at rps per second. rps <= 0 disables
// the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/_cluster/health", nil)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &health, nil
}

// Search runs one query against index. Identical requests in flight at the
// same time share a single round trip and its result. The shared round trip
// is not bound to any caller's context; each caller stops waiting when its
// own ctx is done.
func (c *Client) Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search: %w", err)
	}
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	key := index + "\x00" + string(body)
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.search(flight, index, body)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("search %s: %w", index, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("search shared", "index", index)
		}
		return res.Val.(*SearchResponse), nil
	}
}

func (c *Client) search(ctx context.Context, index string, body []byte) (*SearchResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/"+index+"/_search", body)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.send(ctx, method, path, body)
}

// wait blocks until the rate limiter admits one request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("http",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-Id"),
		"elapsed", time.Since(start),
	)
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status    int
	Type      string
	Reason    string
	RequestID string
	Body      []byte
}

func (e *APIError) Error() string {
	switch {
	case e.Type != "" && e.Reason != "":
		return fmt.Sprintf("API %d: %s: %s", e.Status, e.Type, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("API %d: %s", e.Status, e.Reason)
	default:
		return fmt.Sprintf("API %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
	}
}

// IsAPIStatus reports whether err is an APIError with the given status.
func IsAPIStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{
		Status:    resp.StatusCode,
		RequestID: resp.Request.Header.Get("X-Request-Id"),
		Body:      body,
	}
	var envelope ErrorResponse
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Error) == 0 {
		return apiErr
	}
	var cause errorCause
	if json.Unmarshal(envelope.Error, &cause) == nil {
		apiErr.Type, apiErr.Reason = cause.Type, cause.Reason
		return apiErr
	}
	var reason string
	if json.Unmarshal(envelope.Error, &reason) == nil {
		apiErr.Reason = reason
	}
	return apiErr
}
