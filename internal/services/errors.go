package services

import "fmt"

// PreconditionError reports invalid input or source data detected before
// any write to the accounting platform. The caller must fix the input
// and retry; nothing has been created.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func preconditionf(format string, args ...interface{}) *PreconditionError {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}
