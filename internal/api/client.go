// Package api is the HTTP client for the finance backend. It holds the
// single auth credential, tags every request with an id, and turns a 401
// from a protected endpoint into ErrUnauthorized after running the
// registered reset handler.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finboard/internal/log"
)

// TokenHeader carries the auth credential on every protected request.
const TokenHeader = "X-Auth-Token"

const requestIDHeader = "X-Request-ID"

// ErrUnauthorized is returned when a protected endpoint rejects the
// credential. The response body is never interpreted.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError reports a non-2xx response other than an auth rejection.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// UnauthorizedHandler runs once per rejected request, after the in-memory
// credential has been cleared.
type UnauthorizedHandler func(ctx context.Context)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger

	mu             sync.RWMutex
	token          string
	onUnauthorized UnauthorizedHandler
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPI) }
}

// NewClient creates a client for the backend at baseURL. A zero timeout
// leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Discard().WithComponent(log.ComponentAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized registers the reset flow run on a 401.
func (c *Client) OnUnauthorized(h UnauthorizedHandler) {
	c.mu.Lock()
	c.onUnauthorized = h
	c.mu.Unlock()
}

// publicPath reports endpoints that answer without a credential. A 401
// from them is an ordinary failure (wrong password), not a session reset.
func publicPath(path string) bool {
	return strings.HasPrefix(path, "/api/auth/")
}

// Do sends the request and returns the response for any 2xx/3xx status.
// The caller closes the body.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.New().String()
	req.Header.Set(requestIDHeader, requestID)
	if token := c.Token(); token != "" {
		req.Header.Set(TokenHeader, token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "API request failed",
			log.FieldRequestID, requestID,
			log.FieldMethod, method,
			log.FieldPath, path,
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err.Error())
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.DebugContext(ctx, "API request completed",
		log.FieldRequestID, requestID,
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized && !publicPath(path) {
		resp.Body.Close()
		c.handleUnauthorized(ctx, path)
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp, nil
}

func (c *Client) handleUnauthorized(ctx context.Context, path string) {
	c.mu.Lock()
	c.token = ""
	h := c.onUnauthorized
	c.mu.Unlock()

	c.logger.WarnContext(ctx, "Credential rejected, resetting session",
		log.FieldPath, path,
		log.FieldErrorType, log.ErrorTypeAuth)
	if h != nil {
		h(ctx)
	}
}

// JSON sends in as a JSON body (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp, err := c.Do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Raw sends a request whose response body is not JSON and discards the body.
func (c *Client) Raw(ctx context.Context, method, path string, body io.Reader, contentType string) error {
	resp, err := c.Do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
