package cli

import "errors"

var ErrUsage = errors.New("cli usage error")

// ErrDocument marks failures to read, decode or validate the input document.
var ErrDocument = errors.New("cli document error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// documentError keeps the *spec.SpecError reachable through errors.As while
// printing the friendlier message.
type documentError struct {
	msg   string
	cause error
}

func (e *documentError) Error() string {
	return e.msg
}

func (e *documentError) Unwrap() error {
	return e.cause
}

func (e *documentError) Is(target error) bool {
	return target == ErrDocument
}
