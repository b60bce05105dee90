// Package checksum reproduces the digest algorithm used by the migration
// ledger. The ledger stores a SHA-256 hex digest computed over the raw bytes
// of migration.sql at apply time, so Sum must hash exact bytes — never a
// re-encoded or newline-normalized string.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Sum returns the SHA-256 digest of data as a 64-character hex string.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File returns the digest of the raw bytes of the file at path.
func File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Sum(data), nil
}
