package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashContent computes a lowercase-hex SHA-256 digest over the UTF-8
// bytes of the trimmed content (§4.2.2). SHA-256 runs in O(n) of the
// input length and is deterministic, satisfying both requirements without
// needing a third-party hash library — crypto/sha256 is the idiomatic
// choice for this exact need in the corpus.
func hashContent(content string) string {
	trimmed := strings.TrimSpace(content)
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}
