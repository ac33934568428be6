package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// codeAlphabet omits 0/O/1/I/L so printed codes survive bad fonts and
// hurried door staff.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random n-character code drawn from an unambiguous
// uppercase alphabet. Used for attendee QR tokens and registration codes;
// uniqueness is enforced by the database, callers regenerate on collision.
func GenerateCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// GenerateToken returns a long URL-safe random token for invite links.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}
