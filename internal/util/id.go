package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID generates a random hex id, optionally prefixed ("client", "box").
// Client ids double as the wire sender field for echo suppression, so they
// only need uniqueness within a session, not global coordination.
func NewID(prefix string) string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
