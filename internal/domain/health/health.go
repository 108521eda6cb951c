// Package health checks that one piece of content answers over HTTP and
// renders the outcome as a report.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
)

// Check outcomes.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// ErrorPrefix marks a result whose content could not be retrieved.
const ErrorPrefix = "ERROR:"

// UserAgent identifies health probes in the platform's instrumentation data.
const UserAgent = "ContentHealthMonitor/1.0"

const (
	defaultTimeout = 60 * time.Second
	pingTimeout    = 5 * time.Second
)

var (
	guidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}`)
	urlPattern  = regexp.MustCompile(`(?i)^https?://`)
)

// GUIDError is returned by ExtractGUID when the input holds no GUID.
type GUIDError struct {
	Input string
	IsURL bool
}

func (e *GUIDError) Error() string {
	if e.IsURL {
		return fmt.Sprintf("the URL provided in MONITORED_CONTENT_GUID does not contain a valid GUID: %s", e.Input)
	}
	return fmt.Sprintf("the value provided in MONITORED_CONTENT_GUID is not a valid GUID: %s", e.Input)
}

// ExtractGUID returns the first GUID found in s, which may be a bare GUID
// or a URL containing one.
func ExtractGUID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := guidPattern.FindString(s); m != "" {
		return m, nil
	}
	return "", &GUIDError{Input: s, IsURL: urlPattern.MatchString(s)}
}

// FormatError returns the platform's own message for API errors, preferring
// error_message over error, and the plain error text otherwise.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := connect.AsAPIError(err); ok && apiErr.Text() != "" {
		return apiErr.Text()
	}
	return err.Error()
}

// Result is the outcome of one content check.
type Result struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	LogsURL      string `json:"logs_url,omitempty"`
	OwnerName    string `json:"owner_name,omitempty"`
	OwnerEmail   string `json:"owner_email,omitempty"`
	Status       string `json:"status"`
	HTTPCode     string `json:"http_code"`
}

// Failed reports whether the check did not pass.
func (r Result) Failed() bool { return r.Status != StatusPass }

// RetrievalError returns the platform message when the content itself could
// not be fetched.
func (r Result) RetrievalError() (string, bool) {
	if !strings.HasPrefix(r.Name, ErrorPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Name, ErrorPrefix)), true
}

// ShouldNotify reports whether a report should alert its subscribers: on
// any API error, or when the content check failed.
func ShouldNotify(apiError bool, result *Result) bool {
	if apiError {
		return true
	}
	return result != nil && result.Status == StatusFail
}

// Platform is the subset of the platform client the checker needs.
type Platform interface {
	GetContent(ctx context.Context, guid string) (connect.Content, error)
	GetUser(ctx context.Context, guid string) (connect.User, error)
	Me(ctx context.Context) (connect.User, error)
	Ping(ctx context.Context) error
	Server() string
	APIKey() string
}

// Checker probes content on behalf of one platform identity.
type Checker struct {
	platform Platform
	http     *http.Client
	timeout  time.Duration
	log      logger.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each content probe.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the client used to probe content URLs.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewChecker returns a Checker using platform for lookups.
func NewChecker(platform Platform, opts ...Option) *Checker {
	c := &Checker{
		platform: platform,
		http:     &http.Client{},
		timeout:  defaultTimeout,
		log:      logger.Named("health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerReachable pings the platform.
func (c *Checker) ServerReachable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.platform.Ping(ctx); err != nil {
		return fmt.Errorf("connect server at %s is unavailable: %w", c.platform.Server(), err)
	}
	return nil
}

// CurrentUserName returns the full name of the checking identity, its
// username when no name is set, or "Unknown" when neither is available.
func (c *Checker) CurrentUserName(ctx context.Context) string {
	me, err := c.platform.Me(ctx)
	if err != nil {
		c.log.Warn(ctx, "could not retrieve current user", logger.String("error", FormatError(err)))
		return "Unknown"
	}
	if name := me.FullName(); name != "" {
		return name
	}
	return "Unknown"
}

// Check fetches the content's metadata and owner and probes its URL. A 2xx
// answer passes; anything else, including transport errors, fails.
func (c *Checker) Check(ctx context.Context, guid string) Result {
	result := c.check(ctx, guid)
	metrics.RecordHealthCheck(result.Status)
	return result
}

func (c *Checker) check(ctx context.Context, guid string) Result {
	content, err := c.platform.GetContent(ctx, guid)
	if err != nil {
		return Result{
			GUID:     guid,
			Name:     ErrorPrefix + " " + FormatError(err),
			Status:   StatusFail,
			HTTPCode: "Error retrieving content",
		}
	}

	result := Result{
		GUID:         guid,
		Name:         content.DisplayName(),
		DashboardURL: content.DashboardURL,
	}
	if content.OwnerGUID != "" {
		owner, err := c.platform.GetUser(ctx, content.OwnerGUID)
		if err != nil {
			c.log.Warn(ctx, "could not retrieve owner",
				logger.String("guid", guid), logger.String("error", FormatError(err)))
		} else {
			result.OwnerEmail = owner.Email
			result.OwnerName = strings.TrimSpace(owner.FirstName + " " + owner.LastName)
			if result.OwnerName == "" {
				result.OwnerName = "Unknown"
			}
		}
	}
	if content.DashboardURL != "" && content.AppRole != "viewer" {
		result.LogsURL = strings.TrimRight(content.DashboardURL, "/") + "/logs"
	}

	target := content.ContentURL
	if target == "" {
		target = strings.TrimRight(c.platform.Server(), "/") + "/content/" + guid
	}
	status, err := c.probe(ctx, target)
	if err != nil {
		result.Status = StatusFail
		result.HTTPCode = err.Error()
		return result
	}
	result.HTTPCode = strconv.Itoa(status)
	if status >= 200 && status < 300 {
		result.Status = StatusPass
	} else {
		result.Status = StatusFail
	}
	return result
}

func (c *Checker) probe(ctx context.Context, target string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.platform.APIKey())
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return 0, fmt.Errorf("timed out after %s: %w", c.timeout, err)
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, nil
}
