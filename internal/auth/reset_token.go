package auth

import (
	"crypto/rand"
	"encoding/base64"
)

const resetTokenSize = 32

// newResetToken returns an unguessable base64url token
func newResetToken() (string, error) {
	buf := make([]byte, resetTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
