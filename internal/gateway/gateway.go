// Package gateway performs single HTTP calls against remote sites and folds
// every outcome, including transport failures, into a Result value.
package gateway

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
)

// DefaultTimeout bounds every call made through a Client.
const DefaultTimeout = 30 * time.Second

// Request describes one call. URL is fully qualified; the gateway knows
// nothing about sites.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	// Body is JSON-encoded when non-nil.
	Body any
}

// Result is the normalized outcome of a call. Status 0 means no HTTP
// response was received at all.
type Result struct {
	OK     bool
	Status int
	// Data holds the decoded JSON body, the raw text when it is not JSON,
	// or nil when the body is empty.
	Data any
	Body []byte
}

// Failed reports whether the call never got an HTTP response.
func (r Result) Failed() bool {
	return r.Status == 0
}

// Client executes Requests with a fixed timeout.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// New builds a Client. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(&http.Client{Timeout: timeout}, logger)
}

// NewWithHTTPClient wraps an existing http.Client, e.g. httptest's.
func NewWithHTTPClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   httpClient,
		logger: logger.With("component", "gateway"),
	}
}

// Do performs exactly one attempt and never panics or returns an error.
func (c *Client) Do(ctx context.Context, req *Request) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("Recovered panic during request", "panic", fmt.Sprint(rec))
			res = Result{}
		}
	}()

	if req == nil {
		return Result{}
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			c.logger.Warn("Failed to encode request body", "method", method, "url", req.URL, "error", err)
			return Result{}
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		c.logger.Warn("Failed to build request", "method", method, "url", req.URL, "error", err)
		return Result{}
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if bodyReader != nil && isWriteMethod(method) {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending request", "method", method, "url", req.URL)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		c.logger.Log(ctx, level, "Request failed", "method", method, "url", req.URL, "error", err)
		return Result{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("Failed to read response body", "method", method, "url", req.URL, "error", err)
		return Result{}
	}

	return Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Data:   parseBody(body),
		Body:   body,
	}
}

// Decode unmarshals the raw body of res into v.
func Decode(res Result, v any) error {
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return fmt.Errorf("empty response body (status %d)", res.Status)
	}
	if err := json.Unmarshal(res.Body, v); err != nil {
		return fmt.Errorf("decode response (status %d): %w", res.Status, err)
	}
	return nil
}

// Message extracts a human readable message from a WordPress style error
// body ({"code":..,"message":..}) or falls back to the HTTP status text.
func Message(res Result) string {
	if data, ok := res.Data.(map[string]any); ok {
		if msg, ok := data["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if res.Failed() {
		return "no response from site"
	}
	return fmt.Sprintf("HTTP %d %s", res.Status, http.StatusText(res.Status))
}

func parseBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	return data
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
