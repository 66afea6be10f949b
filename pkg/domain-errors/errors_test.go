package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	base := New(CodeInvariantViolation, "total ownership would exceed 100%")
	wrapped := fmt.Errorf("add owner: %w", base)

	assert.True(t, HasCode(wrapped, CodeInvariantViolation))
	assert.False(t, HasCode(wrapped, CodeConflict))
	assert.True(t, Is(wrapped))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to load owners")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Contains(t, err.Error(), "failed to load owners")
}

func TestWithDetailCarriesStructuredContext(t *testing.T) {
	err := Newf(CodeInvariantViolation, "current total is %.2f%%", 85.5).
		WithDetail("current_total", 85.5).
		WithDetail("attempted", 20.0)

	assert.Equal(t, 85.5, err.Details["current_total"])
	assert.Equal(t, 20.0, err.Details["attempted"])
}

func TestCodeOfNonDomainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
