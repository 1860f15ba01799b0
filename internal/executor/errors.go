package executor

import "fmt"

// TaskErrorKind classifies executor failures.
type TaskErrorKind string

const (
	// KindProviderFailure is a transport/timeout/auth failure from the backend
	KindProviderFailure TaskErrorKind = "provider_failure"
	// KindInternal is an unexpected failure during prompt building or parsing
	KindInternal TaskErrorKind = "internal"
)

// TaskError is the only error type the executor returns. Only provider
// failures and internal failures fail an event; tool and sidecar failures
// degrade with logging instead.
type TaskError struct {
	Kind  TaskErrorKind
	Cause error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task error (%s): %v", e.Kind, e.Cause)
}

func (e *TaskError) Unwrap() error { return e.Cause }

func providerFailure(err error) *TaskError {
	return &TaskError{Kind: KindProviderFailure, Cause: err}
}

func internalError(err error) *TaskError {
	return &TaskError{Kind: KindInternal, Cause: err}
}
