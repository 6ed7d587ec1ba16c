package action

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailureCategory
	}{
		{"transient wrap", Transient(errors.New("x")), types.FailureTransient},
		{"permanent wrap", Permanent(errors.New("x")), types.FailurePermanent},
		{"deadline exceeded", context.DeadlineExceeded, types.FailureTimeout},
		{"wrapped deadline", fmt.Errorf("attempt: %w", context.DeadlineExceeded), types.FailureTimeout},
		{"unclassified defaults transient", errors.New("mystery"), types.FailureTransient},
		{"classification survives wrapping", fmt.Errorf("outer: %w", Permanent(errors.New("x"))), types.FailurePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(types.FailureTransient))
	assert.True(t, retryable(types.FailureTimeout))
	assert.False(t, retryable(types.FailurePermanent))
}
