// Package apperr classifies store and handler failures into the error
// kinds the wire protocol needs to translate into ERR responses.
//
// The shape follows docker-compose's errdefs package: a handful of
// sentinel errors, one per Kind, wrapped with github.com/pkg/errors so
// callers can attach context while still letting errors.Is recover the
// Kind further up the stack.
package apperr

import "github.com/pkg/errors"

// Kind buckets a failure into one of the categories spec.md §7 names.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
	KindPermission
	KindAuth
	KindTransport
	KindInternal
)

// Sentinel errors, one per Kind. Every *Error matches its Kind's
// sentinel under errors.Is, including one built by Wrap around another
// cause, so the Kind survives wrapping with a message or a status/slug.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrPermission = errors.New("permission")
	ErrAuth       = errors.New("auth")
	ErrTransport  = errors.New("transport")
	ErrInternal   = errors.New("internal")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindPermission:
		return ErrPermission
	case KindAuth:
		return ErrAuth
	case KindTransport:
		return ErrTransport
	default:
		return ErrInternal
	}
}

// Error is a classified failure carrying the wire status/slug a handler
// writes back verbatim in an ERR response (spec.md §6.1's code vocabulary).
type Error struct {
	kind   Kind
	Status int    // e.g. 404
	Slug   string // e.g. "user_not_found"
	msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Slug
	}
	return e.msg + ": " + e.Slug
}

func (e *Error) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return sentinelFor(e.kind)
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool { return target == sentinelFor(e.kind) }

func (e *Error) Kind() Kind { return e.kind }

// New builds a fresh classified error.
func New(kind Kind, status int, slug, msg string) *Error {
	return &Error{kind: kind, Status: status, Slug: slug, msg: msg}
}

// Wrap attaches kind/status/slug to an underlying cause (e.g. an os.Open
// failure), preserving it for logging while fixing the wire response.
func Wrap(kind Kind, status int, slug string, cause error) *Error {
	return &Error{kind: kind, Status: status, Slug: slug, msg: cause.Error(), cause: cause}
}

// Internal is shorthand for the catch-all 500 internal_error response that
// spec.md §7 mandates for unexpected store/I-O failures.
func Internal(cause error) *Error {
	return Wrap(KindInternal, 500, "internal_error", cause)
}

// Is reports whether err (or anything it wraps) classifies as kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinelFor(kind))
}

// As extracts the *Error carrying the wire status/slug, if present.
func As(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

// StatusSlug returns the (status, slug) pair a handler should write for
// err, falling back to 500 server_error for anything unclassified.
func StatusSlug(err error) (int, string) {
	if ce, ok := As(err); ok {
		return ce.Status, ce.Slug
	}
	return 500, "server_error"
}
