package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// TokenBytes is the amount of randomness behind every issued token.
	TokenBytes = 32
	// HashLength is the length of a hex encoded token digest.
	HashLength = sha256.Size * 2
)

var randomRead = rand.Read

// GenerateRandomToken generates a random token of specified length
func GenerateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := randomRead(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken returns the lowercase hex SHA-256 digest of a plaintext token.
// Only digests are ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
