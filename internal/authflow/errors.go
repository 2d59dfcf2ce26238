package authflow

import "errors"

// Kind classifies a flow error; the HTTP layer maps each kind to a
// status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindPermission
	KindNotFound
	KindConflict
	KindLocked
	KindInternal
)

// Error is the typed failure every flow returns. Code is an optional
// machine-readable discriminator (e.g. GOOGLE_ACCOUNT_NO_PASSWORD) for
// clients that branch on more than the status.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// CodeNoPassword marks a federated-only account attempting password
// login.
const CodeNoPassword = "GOOGLE_ACCOUNT_NO_PASSWORD"

func validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }
func auth(msg string) *Error       { return &Error{Kind: KindAuth, Message: msg} }
func permission(msg string) *Error { return &Error{Kind: KindPermission, Message: msg} }
func notFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func conflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }
func internal(msg string) *Error   { return &Error{Kind: KindInternal, Message: msg} }

// AsError coerces any error to a flow error; anything unclassified is
// internal so no raw detail crosses the boundary.
func AsError(err error) *Error {
	var flowErr *Error
	if errors.As(err, &flowErr) {
		return flowErr
	}
	return internal("Something went wrong")
}
