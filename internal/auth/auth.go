// Package auth implements the shared-secret handshake digest used by
// external components (XEP-0114).
package auth

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptySecret is returned when a secret file holds no key.
var ErrEmptySecret = errors.New("secret key file is empty")

// HandshakeDigest returns the lowercase hex SHA-1 of streamID followed by secret.
// This is the content of the <handshake/> element a component sends.
func HandshakeDigest(streamID, secret string) string {
	sum := sha1.Sum([]byte(streamID + secret))
	return hex.EncodeToString(sum[:])
}

// VerifyDigest reports whether digest matches the expected handshake for
// streamID and secret. Comparison is case-insensitive and constant time.
func VerifyDigest(streamID, secret, digest string) bool {
	want := HandshakeDigest(streamID, secret)
	got := strings.ToLower(strings.TrimSpace(digest))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// LoadSecretKey reads a secret key from a file. Surrounding whitespace is trimmed.
func LoadSecretKey(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret key path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptySecret)
	}

	return key, nil
}
