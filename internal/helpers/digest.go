package helpers

import (
	"crypto/sha256"
	"encoding/hex"
)

// digestPrefixLen is long enough to keep archive directories apart within one scope.
const digestPrefixLen = 12

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first characters of Digest, used to name content-addressed
// directories.
func ShortDigest(data []byte) string {
	return Digest(data)[:digestPrefixLen]
}
