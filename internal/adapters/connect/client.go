// Package connect is a typed client for the platform REST API.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
	"github.com/okian/connect-extensions/pkg/tracing"
)

// SessionTokenHeader carries the visitor's session token on requests
// proxied by the platform.
const SessionTokenHeader = "Posit-Connect-User-Session-Token"

const (
	apiPrefix        = "__api__/"
	defaultUserAgent = "connect-extensions/1.0"
	defaultTimeout   = 30 * time.Second
)

// Client talks to one platform server as one identity.
type Client struct {
	server    *url.URL
	apiKey    string
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: c.http.Transport}
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New returns a client for the server root URL (e.g. https://connect.example.com).
func New(server, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(server) == "" {
		return nil, ErrNoServer
	}
	u, err := url.Parse(strings.TrimRight(server, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, apiPrefix)
	c := &Client{
		server:    u,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Server returns the server root URL without a trailing slash.
func (c *Client) Server() string {
	return strings.TrimRight(c.server.String(), "/")
}

// APIKey returns the key the client authenticates with.
func (c *Client) APIKey() string { return c.apiKey }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// WithAPIKey returns a client for the same server authenticated as apiKey.
func (c *Client) WithAPIKey(apiKey string) *Client {
	cp := *c
	cp.apiKey = apiKey
	return &cp
}

func (c *Client) endpoint(path string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimLeft(path, "/")}
	if !strings.HasPrefix(path, "/") {
		ref.Path = apiPrefix + ref.Path
	}
	u := c.server.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// request describes one API call. Paths are relative to /__api__/ unless
// they start with "/", in which case they are relative to the server root.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accept      string
}

func (c *Client) send(ctx context.Context, r request) (resp *http.Response, err error) {
	ctx, span := tracing.Start(ctx, "connect."+r.op,
		attribute.String("http.method", r.method),
		attribute.String("connect.path", r.path),
	)
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordUpstreamRequest(r.op, status, float64(time.Since(start).Milliseconds()))
		tracing.End(span, err)
	}()

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", r.op, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	tracing.Inject(ctx, req.Header)

	resp, err = c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{Op: r.op, Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Text() == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		apiErr.Op, apiErr.Status = r.op, resp.StatusCode
		return nil, apiErr
	}
	return resp, nil
}

// do sends r and decodes a JSON body into out (when out is non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path, query: query}, out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	return c.do(ctx, request{
		op:          op,
		method:      method,
		path:        path,
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, out)
}

// Ping checks that the server answers on /__ping__.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{op: "ping", method: http.MethodGet, path: "/__ping__"}, nil)
}
