package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short stable content hash used as a dataset uid.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}
