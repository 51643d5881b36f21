// Package client talks to the assetflow API. Every response passes through
// DecodeEnvelope, which fails with ErrShape instead of guessing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/assetflow/internal/session"
)

// ErrShape is returned when a response body is not the expected envelope.
var ErrShape = errors.New("unexpected response shape")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	// RetryAfter is set on 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Envelope is the body of every successful response.
type Envelope[T any] struct {
	Data *T `json:"data"`
}

// DecodeEnvelope decodes r as an Envelope of T. A body that is not an
// object or lacks data is an ErrShape.
func DecodeEnvelope[T any](r io.Reader) (T, error) {
	var zero T
	var env Envelope[T]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrShape, err)
	}
	if env.Data == nil {
		return zero, fmt.Errorf("%w: missing data", ErrShape)
	}
	return *env.Data, nil
}

// Client is an assetflow API client. The zero session is anonymous.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sess       *session.Session
}

// New creates a client for the server at baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// For returns a copy of c that authenticates as sess.
func (c *Client) For(sess *session.Session) *Client {
	cp := *c
	cp.sess = sess
	return &cp
}

// Session returns the session c authenticates as, or nil.
func (c *Client) Session() *session.Session {
	return c.sess
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.sess != nil && c.sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.sess.Token)
	}
	return req, nil
}

// call sends req and decodes the envelope of a 2xx response into T.
func call[T any](c *Client, req *http.Request) (T, error) {
	var zero T
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, readAPIError(resp)
	}
	v, err := DecodeEnvelope[T](resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return v, nil
}

func callJSON[T any](ctx context.Context, c *Client, method, path string, payload any) (T, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("encoding request: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		var zero T
		return zero, err
	}
	return call[T](c, req)
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
