package tunqi

import (
	"fmt"

	"github.com/tunqi-go/tunqi/internal/errs"
	"github.com/tunqi-go/tunqi/internal/exec"
)

// Error is the interface every error this package returns satisfies. It
// mirrors the teacher's ToolboxError shape (a Msg/Cause pair, Error() and
// Unwrap()) generalized from an HTTP-category split to the taxonomy this
// engine needs: does the row exist, does it already exist, or is the
// request itself malformed.
type Error interface {
	error
	Unwrap() error
}

// DoesNotExistError is returned by SelectOne when no row matches the
// request's filter, e.g. "post with id == 2 doesn't exist" or "no posts
// exist"; Update and Delete report zero affected rows instead. It's an alias for internal/exec's own
// type since the executor is what actually raises it, against the compiled
// filter's human rendering.
type DoesNotExistError = exec.DoesNotExistError

// AlreadyExistsError is returned by Insert when a row would violate a
// unique constraint, e.g. "user with email 'a@b.com' already exists".
// Alias for internal/exec's type for the same reason as DoesNotExistError.
type AlreadyExistsError = exec.AlreadyExistsError

var (
	_ Error = (*DoesNotExistError)(nil)
	_ Error = (*AlreadyExistsError)(nil)
)

// ValueError is returned when a request's shape is self-consistent but its
// content is invalid: an unknown column, an unknown relation, a malformed
// path, an operator applied to the wrong column type.
type ValueError struct{ errs.Base }

var _ Error = (*ValueError)(nil)

func newValueError(format string, args ...any) *ValueError {
	return &ValueError{errs.Base{Msg: fmt.Sprintf(format, args...)}}
}

// TypeError is returned when a Go value passed into the engine (a filter
// operand, a column value, a schema descriptor field) has the wrong type
// for where it's being used.
type TypeError struct{ errs.Base }

var _ Error = (*TypeError)(nil)

func newTypeError(format string, args ...any) *TypeError {
	return &TypeError{errs.Base{Msg: fmt.Sprintf(format, args...)}}
}

// connectionError wraps a driver-level failure (connect, ping, transient
// network error) that callers can only usefully retry or surface verbatim.
type connectionError struct{ errs.Base }

var _ Error = (*connectionError)(nil)

func newConnectionError(msg string, cause error) *connectionError {
	return &connectionError{errs.Base{Msg: msg, Cause: cause}}
}
