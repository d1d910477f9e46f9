package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the category of a failure surfaced to tool callers.
type ErrorKind string

const (
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindNotFound          ErrorKind = "not_found"
	KindRemoteService     ErrorKind = "remote_service_error"
	KindJobFailed         ErrorKind = "job_failed"
	KindTimeout           ErrorKind = "timeout"
	KindBinaryUnavailable ErrorKind = "binary_unavailable"
)

// Sentinels for errors.Is comparisons. Only the kind is compared.
var (
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrRemoteService     = &Error{Kind: KindRemoteService}
	ErrJobFailed         = &Error{Kind: KindJobFailed}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrBinaryUnavailable = &Error{Kind: KindBinaryUnavailable}
)

// Error is the typed error shared by every layer of the server
type Error struct {
	Kind       ErrorKind
	Op         string
	Message    string
	Detail     string
	StatusCode int
	Category   string
	Details    map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// InvalidRequest builds a KindInvalidRequest error.
func InvalidRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// BinaryUnavailable builds a KindBinaryUnavailable error.
func BinaryUnavailable(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBinaryUnavailable, Message: fmt.Sprintf(format, args...)}
}

// RemoteServiceError describes a non-2xx response from the image service.
func RemoteServiceError(status int, category, detail string) *Error {
	return &Error{
		Kind:       KindRemoteService,
		Message:    fmt.Sprintf("remote service returned %d (%s)", status, strings.ReplaceAll(category, "_", " ")),
		Detail:     detail,
		StatusCode: status,
		Category:   category,
	}
}

// NewJobFailed reports a job that reached a terminal failure state.
func NewJobFailed(jobID, status, detail string) *Error {
	if detail == "" {
		detail = "no error detail from remote service"
	}
	return &Error{
		Kind:    KindJobFailed,
		Message: fmt.Sprintf("job %s ended with status %q", jobID, status),
		Detail:  detail,
		Details: map[string]interface{}{"job_id": jobID, "status": status},
	}
}

// Timeout reports a job that did not reach a terminal state in time.
func Timeout(jobID string, timeout time.Duration, lastStatus string) *Error {
	if lastStatus == "" {
		lastStatus = "unknown"
	}
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("job %s did not finish within %s (last status: %s)", jobID, timeout, lastStatus),
		Details: map[string]interface{}{
			"job_id":          jobID,
			"timeout_seconds": timeout.Seconds(),
			"last_status":     lastStatus,
		},
	}
}

// WithOp returns err with the operation name attached. Untyped errors are
// wrapped as remote service errors since they come from the transport.
func WithOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		cp := *typed
		if cp.Op == "" {
			cp.Op = op
		}
		return &cp
	}
	return &Error{Kind: KindRemoteService, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsKind reports whether err is a typed error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// StatusCodeOf returns the HTTP status attached to err, or 0.
func StatusCodeOf(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.StatusCode
	}
	return 0
}
