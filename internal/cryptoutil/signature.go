package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// shaPrefix is the conventional prefix control planes put in front of
// a hex-encoded HMAC-SHA-256 digest (e.g. GitHub/Stripe-style webhook
// signature headers).
const shaPrefix = "sha256="

// Sign computes the hex-encoded HMAC-SHA-256 digest of body under
// key, prefixed with "sha256=".
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return shaPrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is a valid HMAC-SHA-256
// signature of body under key. The comparison is constant-time. The
// "sha256=" prefix is optional in signature and is stripped before
// decoding.
func VerifySignature(key, body []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, shaPrefix)

	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	got := mac.Sum(nil)

	return hmac.Equal(got, want)
}
