package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// sessionKeyBytes is the size of a generated cookie signing key.
const sessionKeyBytes = 32

// GenerateSecureToken returns length random bytes, URL-safe base64 encoded.
func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// SessionKey returns the configured cookie signing key, or a random one when
// none is configured. generated reports the latter; such a key does not
// survive a restart.
func SessionKey(configured string) (key []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	token, err := GenerateSecureToken(sessionKeyBytes)
	if err != nil {
		return nil, false, err
	}
	return []byte(token), true, nil
}
