package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	killqueue "github.com/okian/connect-extensions/internal/adapters/mq/queue"
	"github.com/okian/connect-extensions/internal/adapters/repository"
	service "github.com/okian/connect-extensions/internal/app"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/internal/domain/dag"
	"github.com/okian/connect-extensions/internal/domain/poll"
)

// Sentinel kinds for API errors.
var (
	ErrServe        = errors.New("swagger serve failed")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBackpressure = errors.New("backpressure")
	ErrUpstream     = errors.New("upstream failure")
	ErrUnavailable  = errors.New("unavailable")
	ErrTimeout      = errors.New("timeout")
)

var errMissingAuth = errors.New("missing or invalid Authorization header; use 'Authorization: Key <api_key>'")

// Error tags an underlying error with the operation that failed and a
// kind used to pick the response status.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Kind != nil:
		return e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// kindOf classifies errors coming out of the service layer.
func kindOf(err error) error {
	var (
		deployErr *service.DeployError
		apiErr    *connect.APIError
	)
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, dag.ErrInvalid),
		errors.Is(err, repository.ErrTitleRequired),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, service.ErrNoKillTargets):
		return ErrBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, connect.ErrNoSessionToken),
		errors.Is(err, repository.ErrUserRequired),
		connect.IsUnauthorized(err):
		return ErrUnauthorized
	case errors.Is(err, ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		connect.IsNotFound(err):
		return ErrNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, repository.ErrTitleExists):
		return ErrConflict
	case errors.Is(err, ErrBackpressure), errors.Is(err, killqueue.ErrFull):
		return ErrBackpressure
	case errors.Is(err, ErrTimeout),
		errors.Is(err, service.ErrKillTimeout),
		errors.Is(err, poll.ErrExhausted),
		errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, service.ErrNoPlatform),
		errors.Is(err, service.ErrNoVisitorIntegration),
		errors.Is(err, chat.ErrNoCredentials),
		errors.Is(err, killqueue.ErrClosed):
		return ErrUnavailable
	case errors.Is(err, ErrUpstream), errors.As(err, &deployErr), errors.As(err, &apiErr):
		return ErrUpstream
	}
	return nil
}

// statusFor maps an error to its response status and code.
func statusFor(err error) (int, string) {
	switch kindOf(err) {
	case ErrBadRequest:
		return http.StatusBadRequest, "bad_request"
	case ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case ErrNotFound:
		return http.StatusNotFound, "not_found"
	case ErrConflict:
		return http.StatusConflict, "conflict"
	case ErrBackpressure:
		return http.StatusTooManyRequests, "backpressure"
	case ErrTimeout:
		return http.StatusGatewayTimeout, "timeout"
	case ErrUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	case ErrUpstream:
		return http.StatusBadGateway, "upstream"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
