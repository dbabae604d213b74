// Package bam is the typed client facade for the Address Manager HAL+JSON
// REST API.
//
// The facade owns authentication, retry, pagination, and filter
// construction so that callers (the resolver, planner, and handlers) only
// deal in typed operations and classified errors.
package bam

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies facade errors for the executor's failure policies.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindPathNotFound     ErrorKind = "path-not-found"
	KindConflict         ErrorKind = "conflict"
	KindNotFound         ErrorKind = "not-found"
	KindRateLimited      ErrorKind = "rate-limited"
	KindTransientNetwork ErrorKind = "transient-network"
	KindAuthExpired      ErrorKind = "auth-expired"
	KindPermissionDenied ErrorKind = "permission-denied"
	KindUpstreamFailure  ErrorKind = "upstream-failure"
	KindFatal            ErrorKind = "fatal"
)

// APIError is a classified error from the remote API.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d, endpoint %s)", e.Kind, e.Message, e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Sentinel errors surfaced by the facade.
var (
	// ErrNotFound marks lookups that found no matching entity.
	ErrNotFound = &APIError{Kind: KindNotFound, Message: "entity not found"}

	// ErrDangerousOperation marks refused deletions of protected kinds.
	ErrDangerousOperation = &APIError{
		Kind:    KindPermissionDenied,
		Message: "deletion of a protected kind requires allow-dangerous-operations",
	}

	// ErrAuthFailed marks a second authentication failure within one request.
	ErrAuthFailed = &APIError{Kind: KindAuthExpired, Message: "authentication failed after token refresh"}

	// ErrRateLimitExhausted marks a request that exhausted its rate-limit retries.
	ErrRateLimitExhausted = &APIError{Kind: KindRateLimited, Message: "rate-limit retries exhausted"}
)

// Is lets errors.Is match APIErrors by kind against the sentinels.
func (e *APIError) Is(target error) bool {
	var other *APIError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Kind extracts the classified kind from any error returned by this
// package. Unknown errors are fatal; context cancellation is preserved.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}
	return KindFatal
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status == http.StatusForbidden:
		return KindPermissionDenied
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindTransientNetwork
	default:
		return KindFatal
	}
}

// retryable reports whether an error warrants a transient-network retry.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
