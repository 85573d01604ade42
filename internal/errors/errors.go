package errors

import (
	"fmt"
	"time"
)

// SearchError is the structured error type for the search core. It carries
// a stable Code, a Category derived from Kind, the expected-error Kind tag
// callers switch on, and enough context for logging and user presentation
// without reaching into the error's concrete type.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_403_QUERY_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, RateLimit, Upstream, ...).
	Category Category

	// Kind is the closed expected-error tag from spec §7.
	Kind Kind

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried by the caller.
	Retryable bool

	// Suggestion is an actionable suggestion for the caller.
	Suggestion string

	// RetryAfter is populated for KindThrottled errors.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code, enabling
// errors.Is() to work with SearchError.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the caller. Returns the
// error for method chaining.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// WithRetryAfter sets the retry-after hint for a throttled error. Returns
// the error for method chaining.
func (e *SearchError) WithRetryAfter(d time.Duration) *SearchError {
	e.RetryAfter = d
	return e
}

// New creates a SearchError tagged with the given Kind. Category and
// retryable flag are derived from the Kind.
func New(kind Kind, code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryForKind(kind),
		Kind:      kind,
		Cause:     cause,
		Retryable: retryableForKind(kind),
	}
}

// Wrap creates a SearchError of the given Kind from an existing error. The
// error's message becomes the SearchError message.
func Wrap(kind Kind, code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	return New(kind, code, err.Error(), err)
}

// InvalidInput creates a KindInvalidInput error.
func InvalidInput(code string, message string, cause error) *SearchError {
	return New(KindInvalidInput, code, message, cause)
}

// Throttled creates a KindThrottled error with a retry-after hint.
func Throttled(code string, message string, retryAfter time.Duration) *SearchError {
	return New(KindThrottled, code, message, nil).WithRetryAfter(retryAfter)
}

// UpstreamUnavailable creates a KindUpstreamUnavailable error.
func UpstreamUnavailable(code string, message string, cause error) *SearchError {
	return New(KindUpstreamUnavailable, code, message, cause)
}

// StoreUnavailable creates a KindStoreUnavailable error.
func StoreUnavailable(code string, message string, cause error) *SearchError {
	return New(KindStoreUnavailable, code, message, cause)
}

// QueryTimeout creates a KindQueryTimeout error.
func QueryTimeout(code string, message string, cause error) *SearchError {
	return New(KindQueryTimeout, code, message, cause)
}

// IntegrityError creates a KindIntegrityError error for invariant
// violations that indicate a programmer error rather than an expected
// runtime condition.
func IntegrityError(code string, message string, cause error) *SearchError {
	return New(KindIntegrityError, code, message, cause)
}

// Cancelled creates a KindCancelled error.
func Cancelled(code string, message string, cause error) *SearchError {
	return New(KindCancelled, code, message, cause)
}

// NotFound creates a KindNotFound error.
func NotFound(code string, message string) *SearchError {
	return New(KindNotFound, code, message, nil)
}

// IsRetryable reports whether err is a SearchError with its Retryable
// flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SearchError); ok {
		return se.Retryable
	}
	return false
}

// GetKind extracts the Kind from err, returning "" if err is not a
// SearchError. Callers use this to switch on expected-error tags instead
// of type-asserting the concrete error struct.
func GetKind(err error) Kind {
	if se, ok := err.(*SearchError); ok {
		return se.Kind
	}
	return ""
}

// GetCode extracts the error code from a SearchError. Returns empty
// string if not a SearchError.
func GetCode(err error) string {
	if se, ok := err.(*SearchError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError. Returns empty
// string if not a SearchError.
func GetCategory(err error) Category {
	if se, ok := err.(*SearchError); ok {
		return se.Category
	}
	return ""
}
