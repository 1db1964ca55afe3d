package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewJobID returns 32 lower-case hex characters from a random UUID.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsJobID reports whether s has the shape of an id from NewJobID.
func IsJobID(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

// GenerateRandomHex returns 2n hex characters of crypto randomness.
func GenerateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
