package worker

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// randUint32 is adapted from src/utility/random/random.go's RandUint32:
// crypto/rand instead of math/rand so jitter never shares state (and
// therefore never contends a lock) across every shard of a Group retrying
// its handshake at once.
func randUint32() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// jitter returns d scaled by a random factor in [0.8, 1.2), spreading out
// what would otherwise be perfectly synchronized handshake retries across
// every shard of a Group that lost its connection at the same moment.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	const spread = 0.4 // +/-20%
	// frac is in [0,1).
	frac := float64(randUint32()) / (float64(^uint32(0)) + 1)
	scale := 0.8 + frac*spread
	return time.Duration(float64(d) * scale)
}
