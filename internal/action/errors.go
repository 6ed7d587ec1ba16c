package action

import (
	"context"
	"errors"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// classifiedError tags an error with a failure category so the executor
// knows whether to retry.
type classifiedError struct {
	category types.FailureCategory
	err      error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Transient wraps an error as retryable (timeouts, 5xx-equivalent).
func Transient(err error) error {
	return &classifiedError{category: types.FailureTransient, err: err}
}

// Permanent wraps an error as non-retryable (validation, 4xx-equivalent).
func Permanent(err error) error {
	return &classifiedError{category: types.FailurePermanent, err: err}
}

// Classify returns the failure category for an action error. Deadline
// expiry is a timeout; unclassified errors default to transient so flaky
// downstreams get the retry budget.
func Classify(err error) types.FailureCategory {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	return types.FailureTransient
}

// retryable reports whether a failure category consumes another attempt.
func retryable(category types.FailureCategory) bool {
	return category == types.FailureTransient || category == types.FailureTimeout
}
