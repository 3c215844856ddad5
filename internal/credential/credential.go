// Package credential derives the hashed secrets the broker login expects.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the lowercase hex SHA-256 digest of data.
func SHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// AppKey returns the login app key: sha256("<userID>|<apiKey>").
func AppKey(userID, apiKey string) string {
	return SHA256(userID + "|" + apiKey)
}
