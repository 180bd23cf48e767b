package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a provider failure into one of a small, stable set of
// categories. Downstream logic must branch on Kind only — never on the
// message text or the concrete cause.
type Kind string

const (
	// KindAuthentication means the credential was missing, malformed, or rejected.
	KindAuthentication Kind = "authentication"
	// KindRateLimit means the vendor throttled the request.
	KindRateLimit Kind = "rate_limit"
	// KindQuota means a billing or usage quota is exhausted.
	KindQuota Kind = "quota"
	// KindValidation means the request itself was malformed.
	KindValidation Kind = "validation"
	// KindNotFound means the referenced resource does not exist.
	KindNotFound Kind = "not_found"
	// KindTimeout means the operation exceeded its time or attempt budget.
	KindTimeout Kind = "timeout"
	// KindServer means the vendor failed on its side (5xx-class).
	KindServer Kind = "server"
	// KindConfiguration means local configuration prevents the provider from
	// operating at all. Unrecoverable at the adapter level.
	KindConfiguration Kind = "configuration"
	// KindUnknown is the fallback when nothing else can be determined.
	KindUnknown Kind = "unknown"
)

// Error is the typed failure every provider operation surfaces.
// It is immutable once constructed.
type Error struct {
	// Kind is the failure category. The only field callers may branch on.
	Kind Kind
	// Message is a human-readable description, safe to log. It never
	// contains credential material.
	Message string
	// Status is the HTTP status code equivalent of the failure.
	Status int
	// Cause is the original raw error, retained for logging and errors.As.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider: %s (%d): %s: %v", e.Kind, e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider: %s (%d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error with the canonical status for the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Status: statusFor(kind)}
}

// statusFor returns the canonical HTTP status equivalent for a kind.
func statusFor(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindRateLimit, KindQuota:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// tagKinds maps vendor-supplied machine tags to kinds. Tags are matched
// case-insensitively. The table covers the OpenAI error codes/types and the
// S3 (smithy) error codes the adapters surface.
var tagKinds = []struct {
	tag  string
	kind Kind
}{
	// Credential problems.
	{"invalid_api_key", KindAuthentication},
	{"authentication_error", KindAuthentication},
	{"invalid_organization", KindAuthentication},
	{"invalidaccesskeyid", KindAuthentication},
	{"signaturedoesnotmatch", KindAuthentication},
	{"expiredtoken", KindAuthentication},
	{"accessdenied", KindAuthentication},
	// Throttling.
	{"rate_limit_exceeded", KindRateLimit},
	{"rate_limit_error", KindRateLimit},
	{"throttling", KindRateLimit},
	{"slowdown", KindRateLimit},
	// Billing / quota exhaustion.
	{"insufficient_quota", KindQuota},
	{"quota_exceeded", KindQuota},
	{"billing_hard_limit_reached", KindQuota},
	// Malformed requests.
	{"invalid_request_error", KindValidation},
	{"invalidrequest", KindValidation},
	{"invalidargument", KindValidation},
	{"malformedxml", KindValidation},
	// Missing resources.
	{"not_found_error", KindNotFound},
	{"nosuchkey", KindNotFound},
	{"nosuchbucket", KindNotFound},
	{"notfound", KindNotFound},
}

// ClassifyResponse maps an upstream failure, decomposed at the adapter
// boundary into its vendor tag, HTTP status, and message, onto the taxonomy.
// The vendor tag wins over the numeric status; the status wins over the
// generic fallback. The raw error is retained as Cause.
func ClassifyResponse(status int, tag, message string, cause error) *Error {
	if message == "" {
		message = "unknown server error"
	}
	if kind, ok := kindForTag(tag); ok {
		return &Error{Kind: kind, Message: message, Status: statusFor(kind), Cause: cause}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuthentication, Message: message, Status: status, Cause: cause}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: message, Status: status, Cause: cause}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Message: message, Status: status, Cause: cause}
	case status == http.StatusRequestTimeout:
		return &Error{Kind: KindTimeout, Message: message, Status: status, Cause: cause}
	case status >= 400 && status < 500:
		return &Error{Kind: KindValidation, Message: message, Status: status, Cause: cause}
	case status >= 500:
		return &Error{Kind: KindServer, Message: message, Status: status, Cause: cause}
	default:
		return &Error{Kind: KindUnknown, Message: message, Status: http.StatusInternalServerError, Cause: cause}
	}
}

// kindForTag looks up a vendor tag in the classification table.
func kindForTag(tag string) (Kind, bool) {
	if tag == "" {
		return "", false
	}
	lower := strings.ToLower(tag)
	for _, e := range tagKinds {
		if lower == e.tag {
			return e.kind, true
		}
	}
	return "", false
}

// Classify maps an opaque error onto the taxonomy. Already-typed errors pass
// through unchanged; context deadline failures become Timeout; everything
// else is Unknown with a 500 status equivalent. Adapters that can decompose
// a vendor error should prefer ClassifyResponse.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "operation timed out", Status: http.StatusRequestTimeout, Cause: err}
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), Status: http.StatusInternalServerError, Cause: err}
}

// IsKind reports whether err is a provider Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == kind
}
