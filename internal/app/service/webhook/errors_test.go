package webhook

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingError_Classification(t *testing.T) {
	base := errors.New("upstream said no")

	assert.False(t, IsRetryable(NonRetryable(base)))
	assert.True(t, IsRetryable(Retryable(base)))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("handling event: %w", NonRetryable(base))
	assert.False(t, IsRetryable(wrapped))
	require.True(t, errors.Is(wrapped, base))
}

func TestIsRetryable_DefaultsToRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("something unclassified")))
}

func TestErrEventInFlight_IsNonRetryable(t *testing.T) {
	err := NonRetryable(ErrEventInFlight)
	require.True(t, errors.Is(err, ErrEventInFlight))
	assert.False(t, IsRetryable(err))
}
