package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/credential"
	"github.com/nhle/mailgate/internal/model"
)

// RequestIDHeader carries the per-request id the client generates.
const RequestIDHeader = "X-Request-ID"

// Client is a thin HTTP client for the mail gateway. It attaches Basic
// authorization to every call, never retries and imposes no timeout of its
// own: cancellation is left to the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithInsecureSkipVerify accepts self-signed gateway certificates.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a gateway client. The baseURL is the root URL of the
// gateway (e.g., https://192.168.1.138).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the gateway root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read gateway response.
type Response struct {
	Method    string
	Path      string
	Status    int
	Body      []byte
	RequestID string
}

// Err classifies the response by status code: nil for 200, *AuthError for
// 401 and *RemoteError for anything else.
func (r *Response) Err() error {
	switch r.Status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return &AuthError{Method: r.Method, Path: r.Path}
	default:
		return &RemoteError{
			Status:  r.Status,
			Method:  r.Method,
			Path:    r.Path,
			Message: errorMessage(r.Body),
		}
	}
}

// Decode unmarshals a successful JSON body into v.
func (r *Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf(
			"unmarshaling response from %s %s: %w", r.Method, r.Path, err,
		)
	}
	return nil
}

// Bytes returns the raw body of a successful response.
func (r *Response) Bytes() ([]byte, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	return r.Body, nil
}

// Get performs a GET and returns the response.
func (c *Client) Get(
	ctx context.Context, path string, creds model.Credentials,
) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, creds)
}

// Put performs a body-less PUT and returns the response.
func (c *Client) Put(
	ctx context.Context, path string, creds model.Credentials,
) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, creds)
}

// Delete performs a DELETE and returns the response.
func (c *Client) Delete(
	ctx context.Context, path string, creds model.Credentials,
) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, creds)
}

// Request is the core HTTP method: it builds the request, attaches the
// authorization value for creds and reads the whole body. A non-nil error
// means no status was obtained; status classification is left to the
// returned Response.
func (c *Client) Request(
	ctx context.Context,
	method string,
	path string,
	creds model.Credentials,
) (*Response, error) {
	url := c.baseURL + path
	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", credential.Encode(creds))
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Str("request_id", requestID).
		Msg("gateway request")

	return &Response{
		Method:    method,
		Path:      path,
		Status:    resp.StatusCode,
		Body:      body,
		RequestID: requestID,
	}, nil
}

// maxErrorMessage caps, in bytes, the raw body text kept in a RemoteError.
const maxErrorMessage = 200

// errorMessage extracts the "error" field of a gateway error body, falling
// back to the trimmed raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
