package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a dialogue failure.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindTimeout     Kind = "timeout"
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
	KindMalformed   Kind = "malformed"
)

// Error is returned by Client for every failed reply.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dialogue %s (http %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dialogue %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a second attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindTimeout, KindRateLimited, KindUpstream:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of a dialogue error, or "" if err is not one.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= 500:
		return KindUpstream
	default:
		return KindMalformed
	}
}
