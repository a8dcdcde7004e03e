package xrpc

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrorKind classifies failures so call sites can switch on it instead of on
// concrete error types.
type ErrorKind int

const (
	// KindAPI is any non-2xx response that is not an auth or rate limit failure.
	KindAPI ErrorKind = iota
	// KindAuth covers missing sessions, expired sessions and 401/403 responses.
	KindAuth
	// KindRateLimit is a 429 response.
	KindRateLimit
	// KindTransport is a request that never produced a usable response.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate limit"
	case KindTransport:
		return "transport"
	default:
		return "api"
	}
}

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// Error is the error returned for every failed XRPC call.
type Error struct {
	Kind       ErrorKind
	StatusCode int           // HTTP status, 0 when no response was received
	ErrorCode  string        // the "error" field of the response body, e.g. "ExpiredToken"
	Message    string
	RetryAfter time.Duration // set for KindRateLimit
	Err        error
}

func (e *Error) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "xrpc %s error", e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&builder, ": HTTP %d", e.StatusCode)
	}
	if e.ErrorCode != "" {
		fmt.Fprintf(&builder, " (%s)", e.ErrorCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&builder, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	}
	return builder.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthError builds a KindAuth error. When cause is itself an *Error its status and
// error code are carried over so the original server response stays visible.
func NewAuthError(message string, cause error) *Error {
	authErr := &Error{Kind: KindAuth, Message: message, Err: cause}
	var xerr *Error
	if errors.As(cause, &xerr) {
		authErr.StatusCode = xerr.StatusCode
		authErr.ErrorCode = xerr.ErrorCode
	}
	return authErr
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var xerr *Error
	if !errors.As(err, &xerr) {
		return 0, false
	}
	return xerr.Kind, true
}

func IsAuth(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindAuth
}

func IsRateLimited(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindRateLimit
}

func kindForStatus(statusCode int) ErrorKind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindAPI
	}
}

func retryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout || statusCode >= 500
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultRetryAfter
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return DefaultRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if wait := when.Sub(now); wait > 0 {
			return wait
		}
		return 0
	}
	return DefaultRetryAfter
}
