// Package errs provides the shared Msg/Cause/Unwrap error shape embedded by
// every typed error this engine returns, whichever layer raises it — the
// root package's DoesNotExistError/ValueError/TypeError and
// internal/exec's DoesNotExistError/AlreadyExistsError alike.
package errs

import "fmt"

// Base is embedded by every concrete error type in this engine: it pairs a
// human message with an optional wrapped cause.
type Base struct {
	Msg   string
	Cause error
}

func (e *Base) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Base) Unwrap() error { return e.Cause }
