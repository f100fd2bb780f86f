// Package transport performs the request/response calls of the backend API and
// opens the push channel. It holds no client state and never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/pkg/utils"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of an error response is read into a TransportError.
const maxErrorBody = 4 << 10

// Client is the backend API client.
type Client struct {
	baseURL    string
	pushURL    string
	httpClient *http.Client
	dialer     Dialer
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for request/response calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithDialer sets the dialer used to open the push channel.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets a logger for debug output (requests, status codes).
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the API at baseURL whose push channel lives at pushURL.
func NewClient(baseURL, pushURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pushURL:    pushURL,
		httpClient: http.DefaultClient,
		dialer:     NewWebsocketDialer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &models.TransportError{Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(buf)
	}
	return c.do(ctx, op, http.MethodPost, path, body, "application/json", out)
}

func (c *Client) delete(ctx context.Context, op, path string) error {
	var out models.StatusResponse
	return c.do(ctx, op, http.MethodDelete, path, nil, "", &out)
}

// do sends one request and decodes a 2xx JSON body into out. Every failure is a *models.TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &models.TransportError{Op: op, Message: "build request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return &models.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("request done", zap.String("op", op), zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &models.TransportError{Op: op, Status: resp.StatusCode, Message: errorMessage(b, resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &models.TransportError{Op: op, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// errorMessage extracts the human-readable part of an error body. The backend
// answers {"detail": ...}; other services use "error" or "message".
func errorMessage(body []byte, fallback string) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			switch v := parsed[key].(type) {
			case nil:
			case string:
				if v != "" {
					return v
				}
			default:
				b, _ := json.Marshal(v)
				return string(b)
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return utils.Truncate(s, 200)
	}
	return fallback
}

// pathID escapes an id for use as a single path segment.
func pathID(id string) string {
	return url.PathEscape(id)
}
