package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a fresh 128-bit random identifier, hex encoded and optionally
// prefixed ("node_..."). Ids are unique for any practical purpose but carry no
// ordering meaning.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
