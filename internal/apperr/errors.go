package apperr

import (
	"errors"
	"net/http"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindValidation            Kind = "VALIDATION_ERROR"
	KindNotFound              Kind = "NOT_FOUND"
	KindAccessDenied          Kind = "ACCESS_DENIED"
	KindConflict              Kind = "CONFLICT"
	KindPartialUnavailable    Kind = "PARTIAL_UNAVAILABLE"
	KindDependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
)

// Stable machine-readable codes
const (
	// Validation
	CodeInvalidVoteType   = "INVALID_VOTE_TYPE"
	CodeInvalidTargetType = "INVALID_TARGET_TYPE"
	CodeInvalidLimit      = "INVALID_LIMIT"
	CodeInvalidSort       = "INVALID_SORT"
	CodeInvalidCursor     = "INVALID_CURSOR"
	CodeInvalidParent     = "INVALID_PARENT"
	CodeEmptyBody         = "EMPTY_BODY"
	CodeBodyTooLong       = "BODY_TOO_LONG"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeSelfFollow        = "SELF_FOLLOW"

	// Lookup
	CodeTargetNotFound    = "TARGET_NOT_FOUND"
	CodePostNotFound      = "POST_NOT_FOUND"
	CodeCommentNotFound   = "COMMENT_NOT_FOUND"
	CodeCommunityNotFound = "COMMUNITY_NOT_FOUND"
	CodeUserNotFound      = "USER_NOT_FOUND"

	// Access
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotCommentOwner = "NOT_COMMENT_OWNER"

	CodeVoteConflict    = "VOTE_CONFLICT"
	CodeSourcesFailed   = "SOURCES_FAILED"
	CodeStoreDown       = "STORE_UNAVAILABLE"
	CodeMembershipDown  = "MEMBERSHIP_UNAVAILABLE"
	CodeFeedUnavailable = "FEED_UNAVAILABLE"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (e *Error) Error() string {
	if e.Origin != nil {
		return e.Message + ": " + e.Origin.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Origin
}

func New(kind Kind, code, message string, origin error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Origin:  origin,
	}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message, nil)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message, nil)
}

func AccessDenied(code, message string) *Error {
	return New(KindAccessDenied, code, message, nil)
}

func Conflict(code, message string, origin error) *Error {
	return New(KindConflict, code, message, origin)
}

func Unavailable(code, message string, origin error) *Error {
	return New(KindDependencyUnavailable, code, message, origin)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	return IsKind(err, KindConflict) || IsKind(err, KindDependencyUnavailable)
}

// HTTPStatus converts an error to an HTTP status code.
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	if appErr.Code == CodeUnauthorized {
		return http.StatusUnauthorized
	}

	switch appErr.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPartialUnavailable:
		return http.StatusOK
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
