package metadata

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint returns a hex digest of the document content. MD5 is
// deliberate: this is byte-level change detection, not a security
// boundary, and it keeps fingerprints comparable with catalogs built by
// earlier versions of the tool.
func Fingerprint(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Changed reports whether freshly fetched content differs from the
// previously stored fingerprint. This is the cost-avoidance gate in
// front of parsing and reconciliation.
//
// No previous fingerprint means "changed" (bootstrap); no new content
// means "unchanged" (nothing to process).
func Changed(prevFingerprint string, next []byte) bool {
	if len(next) == 0 {
		return false
	}
	if prevFingerprint == "" {
		return true
	}
	return Fingerprint(next) != prevFingerprint
}
