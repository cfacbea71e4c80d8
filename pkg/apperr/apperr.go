// Package apperr defines the error taxonomy shared by every remote call.
//
// Each failure that crosses the remote client boundary is exactly one *Error
// tagged with a Kind. The kind decides whether the failure is retried and how
// it is presented to the user. *Error implements PlatformError from
// github.com/jmgilman/go/errors, so generic helpers such as IsRetryable and
// GetCode work on it unchanged.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	perrors "github.com/jmgilman/go/errors"
)

// Kind is the taxonomy tag of an Error.
type Kind int

const (
	// KindSystem covers 5xx responses and anything unclassified.
	KindSystem Kind = iota
	// KindNetwork covers transport failures without an HTTP response.
	KindNetwork
	// KindAuth covers 401 and 403 responses.
	KindAuth
	// KindBusiness covers other 4xx responses and local validation failures.
	KindBusiness
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindBusiness:
		return "business"
	default:
		return "system"
	}
}

// Default user-facing messages.
const (
	MsgNetwork        = "network connection failed, please check your connection and retry"
	MsgSessionExpired = "session expired, please log in again"
	MsgForbidden      = "insufficient permission to perform this operation"
	MsgBadRequest     = "invalid request parameters"
	MsgServer         = "server error, please try again later"
	MsgUnknown        = "unknown error, please try again later"
)

// Error is a classified failure. Status is zero when no HTTP exchange took place.
type Error struct {
	Kind    Kind
	Status  int
	Details map[string]interface{}

	message string
	cause   error
}

var _ perrors.PlatformError = (*Error)(nil)

// NewNetwork returns a Network error wrapping the transport failure.
func NewNetwork(message string, cause error) *Error {
	if message == "" {
		message = MsgNetwork
	}
	return &Error{Kind: KindNetwork, message: message, cause: cause}
}

// NewAuth returns an Auth error for a 401 or 403 response.
func NewAuth(status int, message string) *Error {
	if message == "" {
		if status == http.StatusForbidden {
			message = MsgForbidden
		} else {
			message = MsgSessionExpired
		}
	}
	return &Error{Kind: KindAuth, Status: status, message: message}
}

// NewBusiness returns a Business error for a locally detected violation.
func NewBusiness(message string) *Error {
	return &Error{Kind: KindBusiness, message: message}
}

// NewBusinessf is NewBusiness with a formatted message.
func NewBusinessf(format string, args ...interface{}) *Error {
	return NewBusiness(fmt.Sprintf(format, args...))
}

// NewBusinessStatus returns a Business error for a 4xx response.
func NewBusinessStatus(status int, message string) *Error {
	if message == "" {
		message = MsgBadRequest
	}
	return &Error{Kind: KindBusiness, Status: status, message: message}
}

// NewSystem returns a System error. status may be zero.
func NewSystem(status int, message string, cause error) *Error {
	if message == "" {
		message = MsgUnknown
	}
	return &Error{Kind: KindSystem, Status: status, message: message, cause: cause}
}

// FromStatus classifies a received HTTP response by status code.
// message is the server-provided message, if any.
func FromStatus(status int, message string) *Error {
	switch {
	case status == http.StatusUnauthorized:
		return NewAuth(status, message)
	case status == http.StatusForbidden:
		// The server text for 403 is not shown; permission failures read the same everywhere.
		return NewAuth(status, MsgForbidden)
	case status >= 400 && status < 500:
		return NewBusinessStatus(status, message)
	case status >= 500:
		return NewSystem(status, MsgServer, nil)
	default:
		return NewSystem(status, message, nil)
	}
}

// Error implements error.
func (e *Error) Error() string {
	s := e.Kind.String() + ": " + e.message
	if e.Status != 0 {
		s = fmt.Sprintf("%s (status %d)", s, e.Status)
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Message returns the human-readable message without kind or cause.
func (e *Error) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Code maps the kind onto the platform error codes.
func (e *Error) Code() perrors.ErrorCode {
	switch e.Kind {
	case KindNetwork:
		return perrors.CodeNetwork
	case KindAuth:
		if e.Status == http.StatusForbidden {
			return perrors.CodeForbidden
		}
		return perrors.CodeUnauthorized
	case KindBusiness:
		switch e.Status {
		case http.StatusNotFound:
			return perrors.CodeNotFound
		case http.StatusConflict:
			return perrors.CodeConflict
		}
		return perrors.CodeInvalidInput
	default:
		return perrors.CodeInternal
	}
}

// Classification reports Network errors as retryable and everything else as permanent.
func (e *Error) Classification() perrors.ErrorClassification {
	if e.Kind == KindNetwork {
		return perrors.ClassificationRetryable
	}
	return perrors.ClassificationPermanent
}

// Context returns a copy of the details with the status code folded in.
func (e *Error) Context() map[string]interface{} {
	if len(e.Details) == 0 && e.Status == 0 {
		return nil
	}
	ctx := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		ctx[k] = v
	}
	if e.Status != 0 {
		ctx["status"] = e.Status
	}
	return ctx
}

// WithDetail returns a copy of e carrying one more detail field.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// IsSessionExpired reports whether e is a 401 Auth error.
func (e *Error) IsSessionExpired() bool {
	return e.Kind == KindAuth && e.Status == http.StatusUnauthorized
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; errors outside the taxonomy are System.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindSystem
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Ensure returns err as an *Error, wrapping foreign errors as System.
// It returns nil for a nil err.
func Ensure(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return NewSystem(0, MsgUnknown, err)
}
