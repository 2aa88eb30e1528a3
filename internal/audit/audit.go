// Package audit fingerprints agreement documents.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const ShortLen = 8

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the human reference form of a full hash.
func Short(hash string) string {
	if len(hash) <= ShortLen {
		return hash
	}
	return hash[:ShortLen]
}

func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return Hash(data), nil
}

// MismatchError reports a document whose bytes no longer match its recorded hash.
type MismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("audit hash mismatch for %s: expected %s, got %s", e.Path, Short(e.Expected), Short(e.Actual))
}

// Verify recomputes the hash of the file at path and compares it with expected.
func Verify(path, expected string) error {
	actual, err := HashFile(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, expected) {
		return &MismatchError{Path: path, Expected: expected, Actual: actual}
	}
	return nil
}
