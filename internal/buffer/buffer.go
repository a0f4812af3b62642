// Package buffer implements the chunked send/receive buffer (C3): an
// ordered, pool-backed linked list of fixed-capacity Chunks that supports
// zero-copy-style reservation for the syscall boundary while tolerating
// packets that span multiple segments. See spec.md §3-4.3.
package buffer

import (
	"github.com/ouyang506/gamenetcore/internal/pool"
)

// DefaultChunkCapacity matches spec.md §4.3: small game packets fit in one
// 8 KiB chunk, so the common path never allocates past the first append.
const DefaultChunkCapacity = 8 * 1024

// OverflowPolicy governs what a Socket does once a Buffer's soft chunk cap
// is exceeded. The Buffer itself only ever raises the Overflowed flag —
// enforcement is the Socket's responsibility (spec.md §4.7).
type OverflowPolicy int

const (
	OverflowDisconnect OverflowPolicy = iota
	OverflowDropOldest
	OverflowDropNewest
)

// Buffer is an ordered list of Chunks carrying a pending byte stream.
// Not thread-safe: a Buffer must be touched only from the reactor's main
// thread (spec.md §5).
type Buffer struct {
	head, tail *Chunk
	chunkCount int32
	chunkMax   int32
	overflowed bool

	chunkCap int
	chunks   *pool.Pool[Chunk]

	scratch []byte
}

// New creates an empty Buffer whose chunks are chunkCap bytes each, with a
// soft cap of chunkMax retained chunks before Overflowed is raised.
func New(name string, chunkCap int, chunkMax int32) *Buffer {
	if chunkCap <= 0 {
		chunkCap = DefaultChunkCapacity
	}
	b := &Buffer{
		chunkCap: chunkCap,
		chunkMax: chunkMax,
	}
	b.chunks = pool.New[Chunk](name, 32, func(c *Chunk) {
		if cap(c.buf) < chunkCap {
			c.buf = make([]byte, chunkCap)
		} else {
			c.buf = c.buf[:chunkCap]
		}
		c.usedBegin = 0
		c.usedEnd = 0
		c.next = nil
	})
	return b
}

// ChunkCount reports the number of Chunks currently on the list.
func (b *Buffer) ChunkCount() int32 { return b.chunkCount }

// Overflowed reports whether chunkCount has ever exceeded chunkMax since
// the last time it was cleared by the Socket's overflow policy.
func (b *Buffer) Overflowed() bool { return b.overflowed }

// ClearOverflow resets the overflow flag after the Socket has applied its
// overflow policy (drop_oldest / drop_newest / disconnect already decided).
func (b *Buffer) ClearOverflow() { b.overflowed = false }

// IsEmpty reports whether the buffer currently carries zero pending bytes.
func (b *Buffer) IsEmpty() bool {
	return b.head == nil || (b.head == b.tail && b.head.isEmpty())
}

// UsedSize returns the total pending byte count across all Chunks. O(chunks).
func (b *Buffer) UsedSize() int {
	total := 0
	for c := b.head; c != nil; c = c.next {
		total += c.pendingLen()
	}
	return total
}

func (b *Buffer) allocChunk() *Chunk {
	c := b.chunks.Construct()
	if c == nil {
		return nil
	}
	return c
}

func (b *Buffer) pushTail(c *Chunk) {
	if b.tail == nil {
		b.head = c
		b.tail = c
	} else {
		b.tail.next = c
		b.tail = c
	}
	b.chunkCount++
	if b.chunkCount > b.chunkMax {
		b.overflowed = true
	}
}

// releaseHead removes an empty head from the list and returns it to the
// pool, promoting its successor. If head is the sole chunk, its cursors are
// simply reset for reuse instead (spec.md §4.3 remove()).
func (b *Buffer) releaseHead() {
	if b.head == nil {
		return
	}
	if b.head == b.tail {
		b.head.resetCursors()
		return
	}
	old := b.head
	b.head = old.next
	old.next = nil
	b.chunkCount--
	b.chunks.Destroy(old)
}

// Reserved ensures the tail has at least n contiguous free bytes (or one
// byte, if n==0), allocating a new tail Chunk if necessary. If the head
// is empty once the new tail has been pushed (so it is no longer the sole
// chunk), that empty head is released back to the pool.
func (b *Buffer) Reserved(n int) {
	if n <= 0 {
		n = 1
	}
	if b.tail != nil && b.tail.freeLen() >= n {
		return
	}
	if n > b.chunkCap {
		// Oversized reservation: the caller (framer pack()) is responsible
		// for keeping per-message overhead within chunkCap; Reserved only
		// guarantees a single fresh chunk's worth of contiguous space.
		n = b.chunkCap
	}
	c := b.allocChunk()
	if c == nil {
		return
	}
	b.pushTail(c)
	if b.head != nil && b.head != b.tail && b.head.isEmpty() {
		b.releaseHead()
	}
}

// SpacePtr exposes the tail's free region for a direct syscall read.
func (b *Buffer) SpacePtr() []byte {
	b.Reserved(0)
	if b.tail == nil {
		return nil
	}
	return b.tail.free()
}

// SpaceSize reports len(SpacePtr()) without allocating.
func (b *Buffer) SpaceSize() int {
	if b.tail == nil {
		return 0
	}
	return b.tail.freeLen()
}

// AddUsedOffset reports n bytes actually filled into the tail's free region
// (as returned by SpacePtr), advancing usedEnd.
func (b *Buffer) AddUsedOffset(n int) {
	if n <= 0 || b.tail == nil {
		return
	}
	if n > b.tail.freeLen() {
		n = b.tail.freeLen()
	}
	b.tail.usedEnd += n
}

// UsedPtr exposes the head's pending region for a direct syscall write.
func (b *Buffer) UsedPtr() []byte {
	if b.head == nil {
		return nil
	}
	return b.head.pending()
}

// UsedSizeHead reports len(UsedPtr()) — the contiguous prefix only, not the
// total across all chunks (see UsedSize for that).
func (b *Buffer) UsedSizeHead() int {
	if b.head == nil {
		return 0
	}
	return b.head.pendingLen()
}

// Append appends data, allocating Chunks on demand. It cannot fail: if
// chunkCount would exceed chunkMax, it still appends and raises Overflowed,
// leaving the disconnect-vs-shed decision to the Socket.
func (b *Buffer) Append(data []byte) {
	for len(data) > 0 {
		b.Reserved(0)
		if b.tail == nil {
			return // allocator exhausted; nothing more we can do
		}
		n := copy(b.tail.free(), data)
		if n == 0 {
			// tail genuinely full (freeLen==0 despite Reserved) — force a
			// new chunk explicitly rather than spin.
			c := b.allocChunk()
			if c == nil {
				return
			}
			b.pushTail(c)
			continue
		}
		b.tail.usedEnd += n
		data = data[n:]
	}
}

// Remove advances the head's usedBegin by n bytes, releasing exhausted
// chunks. n must not exceed UsedSize(); callers that violate this in a
// debug build will see the removal clamp rather than panic, per spec.md
// §4.3's "programmer error" note (we choose the safe clamp over an assert
// so a misbehaving embedding layer cannot corrupt the reactor thread).
func (b *Buffer) Remove(n int) {
	for n > 0 && b.head != nil {
		avail := b.head.pendingLen()
		if avail == 0 {
			if b.head == b.tail {
				break // nothing left to remove: clamp
			}
			b.releaseHead()
			continue
		}
		take := n
		if take > avail {
			take = avail
		}
		b.head.usedBegin += take
		n -= take
		if b.head.isEmpty() {
			b.releaseHead()
		} else {
			break
		}
	}
}

// CheckUsedSize reports whether total pending bytes across all Chunks is
// >= n. O(chunks); the framer calls this with small n so this stays cheap.
func (b *Buffer) CheckUsedSize(n int) bool {
	if n <= 0 {
		return true
	}
	total := 0
	for c := b.head; c != nil; c = c.next {
		total += c.pendingLen()
		if total >= n {
			return true
		}
	}
	return false
}

// ToContinuous returns n contiguous pending bytes starting at the logical
// head. If already contiguous within the head chunk it returns that slice
// directly (no copy); otherwise it copies into scratch, which the caller
// (normally the owning Socket) provides to avoid a per-call allocation —
// spec.md §9 flags the source's function-local static scratch buffer as
// unsafe for reentrancy, so ownership here is explicit.
func (b *Buffer) ToContinuous(n int, scratch []byte) []byte {
	if n <= 0 {
		return nil
	}
	if b.head != nil && b.head.pendingLen() >= n {
		return b.head.pending()[:n]
	}
	if len(scratch) < n {
		return nil
	}
	copied := 0
	for c := b.head; c != nil && copied < n; c = c.next {
		want := n - copied
		avail := c.pendingLen()
		if want > avail {
			want = avail
		}
		copy(scratch[copied:], c.pending()[:want])
		copied += want
	}
	if copied < n {
		return nil
	}
	return scratch[:n]
}

// AllToContinuous returns the full pending stream as a contiguous slice,
// copying into scratch only when the stream already spans more than one
// chunk.
func (b *Buffer) AllToContinuous(scratch []byte) ([]byte, int) {
	total := b.UsedSize()
	if total == 0 {
		return nil, 0
	}
	out := b.ToContinuous(total, scratch)
	return out, total
}
