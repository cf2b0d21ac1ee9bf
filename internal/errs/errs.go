// Package errs defines the error-kind taxonomy the core uses to decide how a
// failure propagates: retry, circuit-count, drop-with-warning, or surface as an HTTP
// status (spec §7).
package errs

import "errors"

// Kind classifies a failure for the purpose of retry/circuit/propagation policy.
type Kind int

const (
	// TransientNetwork covers timeouts and connection resets: retried with backoff,
	// circuit-counted.
	TransientNetwork Kind = iota
	// RemoteServiceError covers HTTP non-2xx and protocol errors. The RPC client's
	// retry loop retries and circuit-counts them exactly like TransientNetwork; it
	// does not limit them to a single retry.
	RemoteServiceError
	// MalformedInput covers bad wallet format or bad JSON: dropped with a warning,
	// never retried.
	MalformedInput
	// AuthFailure covers a missing or invalid API key: surfaced as 401.
	AuthFailure
	// QuotaExceeded covers a rate-limited caller: surfaced as 429.
	QuotaExceeded
	// Unavailable covers health-probe staleness: surfaced as 500 on /healthz only.
	Unavailable
	// CatastrophicInternal covers an unexpected exception inside a scan task: logged,
	// task isolated, loop continues.
	CatastrophicInternal
)

// Error wraps an underlying cause with a Kind so call sites can classify it via
// errors.As without string-matching.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err (or any error it wraps) is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
