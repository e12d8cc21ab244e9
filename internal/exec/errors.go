package exec

import "github.com/tunqi-go/tunqi/internal/errs"

// DoesNotExistError is raised by SelectOne when no row
// matches the compiled filter, embedding that filter's human rendering,
// e.g. "post with content ending with '2a' and user == 1 doesn't exist".
type DoesNotExistError struct{ errs.Base }

// NewDoesNotExistError builds a DoesNotExistError with msg as its full
// rendered message.
func NewDoesNotExistError(msg string) *DoesNotExistError {
	return &DoesNotExistError{errs.Base{Msg: msg}}
}

// AlreadyExistsError is raised by Insert when a row without on_conflict
// handling would violate a unique constraint, wrapping the driver's
// constraint-violation error as its cause.
type AlreadyExistsError struct{ errs.Base }

// NewAlreadyExistsError builds an AlreadyExistsError with msg as its full
// rendered message and cause as the underlying driver error.
func NewAlreadyExistsError(msg string, cause error) *AlreadyExistsError {
	return &AlreadyExistsError{errs.Base{Msg: msg, Cause: cause}}
}
