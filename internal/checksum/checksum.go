// Package checksum provides the content fingerprints used for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// PageSum fingerprints a page's extracted text together with its
// image-derived text in extraction order. NUL separators keep
// ("ab","c") and ("a","bc") from colliding.
func PageSum(text string, imageTexts []string) string {
	h := sha256.New()
	h.Write([]byte(text))
	for _, t := range imageTexts {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}
