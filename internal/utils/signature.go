package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign returns the base64 HMAC-SHA256 of payload under the given
// secret. Used for webhook verification and attendee QR signing.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under the
// secret. Comparison is constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	want := Sign(secret, payload)
	return hmac.Equal([]byte(want), []byte(signature))
}
