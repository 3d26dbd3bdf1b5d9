package paddle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestVerifySignature_Valid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"event_type":"transaction.completed"}`)
	header := SignPayload(body, testSecret, now)
	require.NoError(t, VerifySignature(header, body, testSecret, now))
}

func TestVerifySignature_ToleratesClockSkew(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)
	header := SignPayload(body, testSecret, now)
	assert.NoError(t, VerifySignature(header, body, testSecret, now.Add(4*time.Minute)))
	assert.NoError(t, VerifySignature(header, body, testSecret, now.Add(-4*time.Minute)))
}

func TestVerifySignature_RejectsReplay(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)
	header := SignPayload(body, testSecret, now)
	err := VerifySignature(header, body, testSecret, now.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrSignatureTimestamp)
}

func TestVerifySignature_RejectsTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	header := SignPayload([]byte(`{"a":1}`), testSecret, now)
	err := VerifySignature(header, []byte(`{"a":2}`), testSecret, now)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_RejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)
	header := SignPayload(body, "other", now)
	err := VerifySignature(header, body, testSecret, now)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifySignature_MalformedHeaders(t *testing.T) {
	now := time.Now()
	for _, header := range []string{"", "ts=abc;h1=00", "h1=00", "ts=123", "garbage"} {
		err := VerifySignature(header, []byte(`{}`), testSecret, now)
		assert.ErrorIs(t, err, ErrSignatureMissing, "header %q", header)
	}
}
