package integration

import (
	"crypto/rand"
	"fmt"
)

// SecretLength is the number of characters in a session secret.
const SecretLength = 32

const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewSecret returns SecretLength random alphanumeric characters.
func NewSecret() (string, error) {
	// Bytes at or above this value would bias the alphabet and are skipped.
	const limit = 256 - 256%len(secretAlphabet)

	out := make([]byte, 0, SecretLength)
	buf := make([]byte, SecretLength*2)
	for len(out) < SecretLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate session secret: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == SecretLength {
				break
			}
		}
	}
	return string(out), nil
}

// ValidSecret reports whether s has the shape NewSecret produces.
func ValidSecret(s string) bool {
	if len(s) < SecretLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
