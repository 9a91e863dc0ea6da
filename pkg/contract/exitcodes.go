package contract

import (
	"errors"
	"fmt"
)

// ErrUnmappedExitCode wraps failures whose exit code has no known meaning.
var ErrUnmappedExitCode = errors.New("unmapped exit code")

var exitCodeMessages = map[int]string{
	2:  "stack underflow",
	3:  "stack overflow",
	4:  "integer overflow",
	5:  "integer out of range",
	6:  "invalid opcode",
	7:  "type check error",
	8:  "cell overflow",
	9:  "cell underflow",
	10: "dictionary error",
	11: "unknown error",
	12: "fatal error",
	13: "out of gas",
}

// ExecutionError is a contract VM failure. It is never retried.
type ExecutionError struct {
	ExitCode int
	Message  string
	err      error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.err }

// CheckExitCode returns nil for 0 and 1 and an *ExecutionError otherwise.
func CheckExitCode(code int) error {
	if code == 0 || code == 1 {
		return nil
	}
	if msg, ok := exitCodeMessages[code]; ok {
		return &ExecutionError{ExitCode: code, Message: msg}
	}
	return &ExecutionError{
		ExitCode: code,
		Message:  fmt.Sprintf("exit code %d: %s", code, ErrUnmappedExitCode),
		err:      ErrUnmappedExitCode,
	}
}
