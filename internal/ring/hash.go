// Package ring implements the Chord-style structured overlay: identity
// hashing, the successor/predecessor/finger-table state a node holds
// about the ring, and the four periodic maintenance tasks that keep that
// state converging under churn.
package ring

import (
	"crypto/sha1"
	"encoding/binary"

	"distributed-kvstore/internal/nodeconf"
)

// Hash maps an address or key string onto the ring's identifier space
// using SHA-1, reduced modulo 2^RingBits. All nodes must compute this
// identically — it is the sole basis for routing agreement.
func Hash(s string) uint32 {
	sum := sha1.Sum([]byte(s))
	// The digest read as a big-endian integer, mod 2^32, is its last 4 bytes.
	full := binary.BigEndian.Uint32(sum[len(sum)-4:])
	return uint32(uint64(full) % nodeconf.RingSize)
}

// InInterval reports whether x lies in the circular interval (a, b],
// or (a, b) when inclusiveRight is false. The space wraps at 2^RingBits.
//
// This is the sole primitive used for every ring-position comparison in
// this package; bugs here corrupt successor/predecessor/finger
// reasoning everywhere else.
func InInterval(x, a, b uint32, inclusiveRight bool) bool {
	switch {
	case a < b:
		if inclusiveRight {
			return a < x && x <= b
		}
		return a < x && x < b
	case a > b:
		if inclusiveRight {
			return x > a || x <= b
		}
		return x > a || x < b
	default: // a == b: full circle
		return inclusiveRight
	}
}
