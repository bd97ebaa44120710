package sdk

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrTypeConfig, ClassifyError(NewConfigError("n", "bad")))
	assert.Equal(t, ErrTypeTimeout, ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, ErrTypeTimeout, ClassifyError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, ErrTypeUnknown, ClassifyError(fmt.Errorf("plain")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewExecutorError("n", "flaky")))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(fmt.Errorf("plain")))

	assert.False(t, Retryable(NewDependencyError("n", "missing")))
	assert.False(t, Retryable(NewExpressionError("n", "bad expr")))
	assert.False(t, Retryable(NewValidationError("n", "shape")))
	assert.False(t, Retryable(NewConfigError("n", "bad")))
}

func TestErrorString(t *testing.T) {
	err := NewExecutorError("a", "tool %s failed", "sum")
	assert.Equal(t, "ExecutorError [node a]: tool sum failed", err.Error())
}
