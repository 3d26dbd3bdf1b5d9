package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Paddle signs webhooks with a header of the form "ts=<unix>;h1=<hex hmac>"
// where the HMAC-SHA256 is computed over "<ts>:<raw body>".
const signatureTolerance = 300 * time.Second

var (
	ErrSignatureMissing   = errors.New("signature header missing or malformed")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSignatureTimestamp = errors.New("signature timestamp outside tolerance")
)

// VerifySignature validates a Paddle webhook signature header against the raw
// request body. now is injected for testability.
func VerifySignature(header string, body []byte, secret string, now time.Time) error {
	ts, h1, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	delta := now.Unix() - ts
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Second > signatureTolerance {
		return ErrSignatureTimestamp
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%s", ts, body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(h1)) {
		return ErrSignatureMismatch
	}
	return nil
}

func parseSignatureHeader(header string) (ts int64, h1 string, err error) {
	if header == "" {
		return 0, "", ErrSignatureMissing
	}
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrSignatureMissing
			}
		case "h1":
			h1 = v
		}
	}
	if ts == 0 || h1 == "" {
		return 0, "", ErrSignatureMissing
	}
	return ts, h1, nil
}

// SignPayload produces a valid signature header for the given body. Used by
// tests and local tooling.
func SignPayload(body []byte, secret string, now time.Time) string {
	ts := now.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%s", ts, body)
	return fmt.Sprintf("ts=%d;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
