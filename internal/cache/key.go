// Package cache stores candidate lists keyed by everything that determines
// them, so a repeated query against the same snapshot skips matching.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const keyPrefix = "screener:candidates:"

// Key identifies a candidate list. Each component is length-prefixed before
// hashing so distinct tuples never collide by concatenation.
func Key(snapshotVersion uint64, matcherFingerprint, normalizationVersion, normalizedQuery string) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], snapshotVersion)
	h.Write(buf[:])
	for _, part := range []string{matcherFingerprint, normalizationVersion, normalizedQuery} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(part)))
		h.Write(buf[:])
		h.Write([]byte(part))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
