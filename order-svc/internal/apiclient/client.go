package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type healthState int

const (
	healthUnknown healthState = iota
	healthOK
	healthDown
)

// Client talks to the external REST backend. Each call gets a per-attempt
// timeout, a cached health check before the first attempt, and exponential
// backoff between retries. Client errors (4xx) are never retried.
type Client struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	HealthTTL   time.Duration

	http   HTTPClient
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	health      healthState
	lastChecked time.Time
}

type Option func(*Client)

func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.Timeout = d }
}

func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.MaxRetries = n
		c.BaseBackoff = backoff
	}
}

func WithHealthTTL(d time.Duration) Option {
	return func(c *Client) { c.HealthTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Timeout:     10 * time.Second,
		MaxRetries:  2,
		BaseBackoff: time.Second,
		HealthTTL:   30 * time.Second,
		http:        http.DefaultClient,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends body as JSON to path and decodes a successful JSON response into out.
// out may be nil. A non-JSON success body is stored when out is a *string.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		err := c.attempt(ctx, attempt, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok && !apiErr.retryable() {
			return apiErr
		}
		if attempt == c.MaxRetries {
			break
		}

		backoff := c.BaseBackoff * time.Duration(1<<attempt)
		c.logger.Warn("api request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleep(ctx, backoff); err != nil {
			break
		}
	}

	c.setHealth(healthDown)

	if apiErr, ok := lastErr.(*APIError); ok {
		return apiErr
	}
	return &APIError{Status: 0, Message: msgNetworkError, Cause: lastErr}
}

func (c *Client) attempt(ctx context.Context, attempt int, method, path string, payload []byte, out any) error {
	if attempt == 0 && !c.checkHealth(ctx) {
		return &APIError{Status: http.StatusServiceUnavailable, Message: msgOffline}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode < 300:
		c.setHealth(healthOK)
	case resp.StatusCode >= 500:
		c.setHealth(healthDown)
	}

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp, raw), Body: raw}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if s, ok := out.(*string); ok && !isJSON(resp) {
		*s = string(raw)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

func errorMessage(resp *http.Response, raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if msg := gjson.GetBytes(raw, "error"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return fmt.Sprintf("Request failed with status %d", resp.StatusCode)
}

// checkHealth reports whether the backend is considered reachable, calling
// GET /health/ at most once per HealthTTL.
func (c *Client) checkHealth(ctx context.Context) bool {
	c.mu.Lock()
	if c.health != healthUnknown && c.now().Sub(c.lastChecked) < c.HealthTTL {
		ok := c.health == healthOK
		c.mu.Unlock()
		return ok
	}
	c.mu.Unlock()

	state := healthDown
	if err := c.pingHealth(ctx); err == nil {
		state = healthOK
	} else {
		c.logger.Warn("api health check failed", zap.Error(err))
	}

	c.mu.Lock()
	c.health = state
	c.lastChecked = c.now()
	c.mu.Unlock()
	return state == healthOK
}

func (c *Client) pingHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHealth(state healthState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = state
}

// Healthy returns the cached health state without a request.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health == healthOK
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
