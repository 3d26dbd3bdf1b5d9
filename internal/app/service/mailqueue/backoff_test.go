package mailqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_Schedule(t *testing.T) {
	// Deltas after attempts 1-5: 1, 5, 15, 60, 240 minutes.
	assert.Equal(t, 1*time.Minute, backoffDelay(1))
	assert.Equal(t, 5*time.Minute, backoffDelay(2))
	assert.Equal(t, 15*time.Minute, backoffDelay(3))
	assert.Equal(t, 60*time.Minute, backoffDelay(4))
	assert.Equal(t, 240*time.Minute, backoffDelay(5))
}

func TestBackoffDelay_ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, 1*time.Minute, backoffDelay(0))
	assert.Equal(t, 240*time.Minute, backoffDelay(6))
	assert.Equal(t, 240*time.Minute, backoffDelay(100))
}
