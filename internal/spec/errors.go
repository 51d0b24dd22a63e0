package spec

import "errors"

// ErrorCode categorizes loader and decoder errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError        ErrorCode = "InputError"
	NetworkError      ErrorCode = "NetworkError"
	ParseError        ErrorCode = "ParseError"
	MalformedDocument ErrorCode = "MalformedDocument"
	ValidationError   ErrorCode = "ValidationError"
)

// Sentinels matched by SpecError.Is, one per code.
var (
	ErrInput             = errors.New("spec: input error")
	ErrNetwork           = errors.New("spec: network error")
	ErrParse             = errors.New("spec: parse error")
	ErrMalformedDocument = errors.New("spec: malformed document")
	ErrValidation        = errors.New("spec: validation error")
)

var sentinelByCode = map[ErrorCode]error{
	InputError:        ErrInput,
	NetworkError:      ErrNetwork,
	ParseError:        ErrParse,
	MalformedDocument: ErrMalformedDocument,
	ValidationError:   ErrValidation,
}

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path, URL or "<text>"
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for the error's code.
func (e *SpecError) Is(target error) bool {
	s, ok := sentinelByCode[e.Code]
	return ok && s == target
}

func malformed(pointer, msg string) *SpecError {
	return &SpecError{Code: MalformedDocument, Message: "spec: " + msg, JSONPointer: pointer}
}
