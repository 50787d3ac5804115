package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies why a status could not be resolved.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindConnection      Kind = "connection"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindHTTPStatus      Kind = "http_status"
	KindParse           Kind = "parse"
	KindUnsupportedHost Kind = "unsupported_host"
	KindInvalidURL      Kind = "invalid_url"
	KindPanic           Kind = "panic"
	KindOther           Kind = "other"
)

// ErrUnsupportedHost is wrapped by resolutions for hosts without a capability.
var ErrUnsupportedHost = errors.New("no capability registered for host")

// Error is a failed status resolution. It is always recorded as FetchError;
// the kind only feeds logs and metrics.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a resolution error, or KindOther when err was not
// produced by this package.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

// classify maps a transport error and/or HTTP status code to an [*Error].
func classify(rawURL string, err error, statusCode int) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindConnection, URL: rawURL, Err: err}
	}

	if statusCode != 0 && (statusCode < 200 || statusCode >= 300) {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return &Error{Kind: KindForbidden, URL: rawURL, Err: wrapped}
		case http.StatusNotFound:
			return &Error{Kind: KindNotFound, URL: rawURL, Err: wrapped}
		case http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, URL: rawURL, Err: wrapped}
		default:
			return &Error{Kind: KindHTTPStatus, URL: rawURL, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return &Error{Kind: KindOther, URL: rawURL, Err: err}
}
