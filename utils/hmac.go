package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// BuildSignedContent constructs the canonical string the provider signs for a
// webhook delivery. Format: {deliveryID}.{timestamp}.{rawBody}
//
// The body must be the raw request bytes; re-serializing the parsed payload
// produces a different string and the signature will not match.
func BuildSignedContent(deliveryID string, timestamp int64, rawBody []byte) string {
	return fmt.Sprintf("%s.%d.%s", deliveryID, timestamp, rawBody)
}

// ParseSigningKey derives the HMAC key from a shared secret of the form
// "prefix_base64key": everything after the first underscore is base64-decoded.
func ParseSigningKey(secret string) ([]byte, error) {
	_, encoded, found := strings.Cut(secret, "_")
	if !found {
		return nil, fmt.Errorf("webhook secret is missing its prefix segment")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook signing key: %w", err)
	}

	return key, nil
}

// ComputeHMACSHA256Base64 computes HMAC-SHA256 over message and returns the
// signature base64-encoded, the encoding the provider uses in its signature header.
func ComputeHMACSHA256Base64(key []byte, message string) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// SecureCompare performs constant-time string comparison to prevent timing attacks.
// This MUST be used when comparing signatures.
func SecureCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// Abs returns the absolute value of x
func Abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
