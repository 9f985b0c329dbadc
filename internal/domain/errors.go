package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind groups errors by how the transport layer should answer them.
type Kind string

const (
	KindValidation Kind = "validation" // 400
	KindAuth       Kind = "auth"       // 401
	KindForbidden  Kind = "forbidden"  // 403
	KindNotFound   Kind = "not_found"  // 404
	KindConflict   Kind = "conflict"   // 409
	KindConfig     Kind = "config"     // fatal at startup
	KindInternal   Kind = "internal"   // 500
)

// Stable machine codes. Clients may depend on them.
const (
	CodeInvalidValue         = "invalid_value"
	CodeWeakPassword         = "weak_password"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeInactiveAccount      = "inactive_account"
	CodePasswordReuse        = "password_reuse"
	CodeInvalidFields        = "invalid_fields"
	CodeNoFieldsProvided     = "no_fields_provided"
	CodeSigningKeyMissing    = "signing_key_missing"
	CodeInvalidToken         = "invalid_token"
	CodeMissingCredentials   = "missing_credentials"
	CodeNoVerificationMethod = "no_verification_method_configured"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeForbidden            = "forbidden"
	CodeInternal             = "internal"
)

// Error is a structured domain error.
// Message is safe to show to clients; Cause is for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so that errors carrying different messages or meta
// still compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

var (
	ErrInvalidValue         = New(KindValidation, CodeInvalidValue, "invalid value")
	ErrWeakPassword         = New(KindValidation, CodeWeakPassword, "password does not meet requirements")
	ErrInvalidFields        = New(KindValidation, CodeInvalidFields, "invalid fields")
	ErrNoFieldsProvided     = New(KindValidation, CodeNoFieldsProvided, "no fields to update")
	ErrPasswordReuse        = New(KindValidation, CodePasswordReuse, "new password must be different from current password")
	ErrInvalidCredentials   = New(KindAuth, CodeInvalidCredentials, "invalid credentials")
	ErrInactiveAccount      = New(KindAuth, CodeInactiveAccount, "user account is not active")
	ErrInvalidToken         = New(KindAuth, CodeInvalidToken, "invalid or expired token")
	ErrMissingCredentials   = New(KindAuth, CodeMissingCredentials, "authorization header missing")
	ErrForbidden            = New(KindForbidden, CodeForbidden, "forbidden")
	ErrNotFound             = New(KindNotFound, CodeNotFound, "user not found")
	ErrConflict             = New(KindConflict, CodeConflict, "user with this email already exists")
	ErrSigningKeyMissing    = New(KindConfig, CodeSigningKeyMissing, "jwt signing secret not configured")
	ErrNoVerificationMethod = New(KindConfig, CodeNoVerificationMethod, "no jwt verification method configured")
	ErrInternal             = New(KindInternal, CodeInternal, "internal error")
)

// InvalidValue reports a malformed value object or entity field.
func InvalidValue(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidValue,
		Message: reason,
		Meta:    map[string]string{"field": field},
	}
}

// WeakPassword names the first password rule that failed.
func WeakPassword(rule, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeWeakPassword,
		Message: reason,
		Meta:    map[string]string{"rule": rule},
	}
}

// InvalidFields lists the unexpected keys of a profile update.
func InvalidFields(fields []string) *Error {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidFields,
		Message: "invalid fields: " + strings.Join(sorted, ", "),
		Meta:    map[string]string{"fields": strings.Join(sorted, ",")},
	}
}

// Internal wraps an infrastructure failure without exposing it to clients.
func Internal(cause error) *Error {
	return Wrap(KindInternal, CodeInternal, "internal error", cause)
}

// InvalidToken keeps the underlying verification failure as cause.
func InvalidToken(cause error) *Error {
	return Wrap(KindAuth, CodeInvalidToken, "invalid or expired token", cause)
}

// Forbidden carries a caller-facing reason.
func Forbidden(msg string) *Error {
	return New(KindForbidden, CodeForbidden, msg)
}

// KindOf returns the Kind of a domain error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
