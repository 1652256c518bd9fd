package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey joins a prefix and an id.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams joins a prefix and any number of parts.
func GenerateKeyWithParams(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

// HashKey returns the hex SHA-256 of data, used to key results by payload.
func HashKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
