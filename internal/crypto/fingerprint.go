package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"maskid/internal/domain"
)

// ShortFingerprint returns a short hex digest of a persona's compressed point.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func ShortFingerprint(id domain.PersonaIdentifier) string {
	sum := sha256.Sum256([]byte(id.CompressedPoint))
	return hex.EncodeToString(sum[:10])
}
