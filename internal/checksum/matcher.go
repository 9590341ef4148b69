package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// Fingerprint returns the hex SHA-256 of an uploaded file. Two uploads with
// the same fingerprint carry the same bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintReader hashes a stream without holding it in memory.
func FingerprintReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumMatcher compares uploads against a known fingerprint.
type ChecksumMatcher struct {
	expectedChecksum string
}

func NewChecksumMatcher(expectedChecksum string) *ChecksumMatcher {
	return &ChecksumMatcher{expectedChecksum: expectedChecksum}
}

// Match reports whether data has the expected fingerprint.
func (cm *ChecksumMatcher) Match(data []byte) (bool, error) {
	if cm.expectedChecksum == "" {
		return false, errors.New("expected checksum is not set")
	}
	return Fingerprint(data) == cm.expectedChecksum, nil
}
