package connect

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrNoServer       = errors.New("connect server url is not configured")
	ErrNoSessionToken = errors.New("user session token is required")
	ErrNoCredentials  = errors.New("credential exchange returned no access token")
)

// Platform error codes with meaning to callers.
const (
	// CodeNoVisitorIntegration is returned when a token exchange is attempted
	// but no visitor API key integration is attached to the content.
	CodeNoVisitorIntegration = 212
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	Op      string
	Status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
	// Detail is the longer error_message some endpoints send next to error.
	Detail string `json:"error_message"`
}

// Text returns the most specific message the platform sent.
func (e *APIError) Text() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

func (e *APIError) Error() string {
	msg := e.Text()
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %d (code %d): %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s: %d: %s", e.Op, e.Status, msg)
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a platform 404.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is a platform 401 or 403.
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

// IsCode reports whether err carries the given platform error code.
func IsCode(err error, code int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}
