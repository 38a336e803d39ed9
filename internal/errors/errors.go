package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies a pipeline failure
type Kind int

const (
	// KindInternal - unexpected internal state
	KindInternal Kind = iota
	// KindConfiguration - missing credentials or invalid configuration
	KindConfiguration
	// KindValidation - invalid caller input
	KindValidation
	// KindNotFound - the tracker or store does not know the identifier
	KindNotFound
	// KindAuth - the tracker rejected our credentials
	KindAuth
	// KindTransient - 5xx, network failure or timeout talking to the tracker
	KindTransient
	// KindUnexpectedResponse - the tracker answered with a body we cannot decode
	KindUnexpectedResponse
	// KindProvider - the completion provider call failed
	KindProvider
	// KindParse - the completion contained no extractable JSON object
	KindParse
	// KindStorage - persistence failure
	KindStorage
)

// ProviderKind narrows a KindProvider error so retry eligibility can be decided
type ProviderKind int

const (
	ProviderOther ProviderKind = iota
	ProviderRateLimit
	ProviderTimeout
	ProviderAuth
)

// Error is a classified error carrying optional context
type Error struct {
	Kind         Kind
	ProviderKind ProviderKind
	Message      string
	Cause        error
	Context      map[string]interface{}
	StackTrace   string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches another *Error of the same kind (and provider subkind for provider errors)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return e.Kind != KindProvider || e.ProviderKind == t.ProviderKind
}

// Reason returns the short machine-readable reason recorded on failed analyses
func (e *Error) Reason() string {
	switch e.Kind {
	case KindConfiguration:
		return "configuration_error"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth_error"
	case KindTransient:
		return "transient_error"
	case KindUnexpectedResponse:
		return "unexpected_response"
	case KindProvider:
		switch e.ProviderKind {
		case ProviderRateLimit:
			return "provider_rate_limit"
		case ProviderTimeout:
			return "provider_timeout"
		case ProviderAuth:
			return "provider_auth"
		default:
			return "provider_error"
		}
	case KindParse:
		return "parse_error"
	case KindStorage:
		return "storage_error"
	default:
		return "internal_error"
	}
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s\n", e.Reason(), e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with a kind and message. Returns nil for a nil err.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(2),
	}
}

// ConfigError reports missing credentials or configuration
func ConfigError(message string) *Error {
	return New(KindConfiguration, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(KindConfiguration, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// NotFoundErrorf creates a not-found error with formatting
func NotFoundErrorf(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// AuthErrorf creates an authentication error with formatting
func AuthErrorf(format string, args ...interface{}) *Error {
	return New(KindAuth, fmt.Sprintf(format, args...))
}

// TransientError wraps a retryable tracker failure
func TransientError(err error, message string) *Error {
	if err == nil {
		return New(KindTransient, message)
	}
	return Wrap(err, KindTransient, message)
}

// UnexpectedResponseError wraps a body or status we cannot interpret
func UnexpectedResponseError(err error, message string) *Error {
	if err == nil {
		return New(KindUnexpectedResponse, message)
	}
	return Wrap(err, KindUnexpectedResponse, message)
}

// ProviderError wraps a completion provider failure with its subkind
func ProviderError(err error, pk ProviderKind, message string) *Error {
	e := New(KindProvider, message)
	e.Cause = err
	e.ProviderKind = pk
	return e
}

// ParseErrorf creates an analysis parse error with formatting
func ParseErrorf(format string, args ...interface{}) *Error {
	return New(KindParse, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a storage error
func DatabaseError(err error, message string) *Error {
	return Wrap(err, KindStorage, message)
}

// DatabaseErrorf wraps a storage error with formatting
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, KindStorage, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(KindInternal, fmt.Sprintf(format, args...))
}

// As returns the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// ProviderKindOf returns the provider subkind, ProviderOther when err is not a provider error
func ProviderKindOf(err error) ProviderKind {
	if e, ok := As(err); ok && e.Kind == KindProvider {
		return e.ProviderKind
	}
	return ProviderOther
}

// Reason maps any error to its short reason string
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Reason()
	}
	return "internal_error"
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether a tracker fetch may be retried
func IsTransient(err error) bool {
	return Is(err, KindTransient)
}

// IsRetryableProvider reports whether a provider call may be retried
func IsRetryableProvider(err error) bool {
	if !Is(err, KindProvider) {
		return false
	}
	pk := ProviderKindOf(err)
	return pk == ProviderRateLimit || pk == ProviderTimeout
}
