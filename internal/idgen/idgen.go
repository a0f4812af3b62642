// Package idgen generates conn_id values: process-unique identifiers never
// reused within the process's lifetime (spec.md §3, §8). Grounded on
// azhai-gozzo-net's network/sess.go RandomGUID, which reseeds a fresh
// math/rand source per call; generalized into one long-lived monotonic
// ulid.Monotonic entropy source guarded by a mutex, so successive ids are
// both unique and sortable by generation order instead of merely
// collision-resistant per call.
package idgen

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// ConnIDGenerator produces process-unique connection identifiers.
type ConnIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewConnIDGenerator returns a generator seeded from the current time.
func NewConnIDGenerator() *ConnIDGenerator {
	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ConnIDGenerator{
		entropy: ulid.Monotonic(source, 0),
	}
}

// Next returns a new, process-unique conn_id string.
func (g *ConnIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}
