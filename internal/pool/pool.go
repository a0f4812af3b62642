// Package pool implements the reusable fixed-type allocator (C1) that backs
// the chunked Buffer's Chunks. It layers typed
// construct/destroy semantics and a small registered table for diagnostics
// on top of github.com/wuyongjia/pool's untyped free-list allocator, the
// same slab-backed pool gotcp-epoll wraps in its own pool.go for []byte and
// SSL objects.
package pool

import (
	"sync/atomic"

	"github.com/sugawarayuuta/sonnet"
	wpool "github.com/wuyongjia/pool"

	"github.com/ouyang506/gamenetcore/internal/spinlock"
)

const maxRegisteredPools = 8

// Stats mirrors the diagnostics counters spec.md §4.1 requires.
type Stats struct {
	Name   string
	New    int64
	Del    int64
	Now    int64
	MaxNew int64
	MaxDel int64
	MaxNow int64
}

// Pool is a typed fixed-size object allocator with a soft cap on retained
// free objects. Construct/Destroy never panic on capacity — a failed slab
// allocation surfaces to the caller as a nil result.
type Pool[T any] struct {
	name      string
	retainCap int
	reset     func(*T)
	backing   *wpool.Pool

	numNew, numDel int64
	numNow         int64
	maxNew, maxDel int64
	maxNow         int64
}

var (
	registryMu spinlock.SpinLock
	registry   []interface{ Stats() Stats }
)

// New creates a Pool of T. The backing slab allocator builds fresh objects
// as zero-valued *T; reset (optional) is invoked on every object
// handed back out by Construct, whether freshly allocated or recycled from
// the free list, so callers can rely on a known-clean object regardless of
// provenance.
func New[T any](name string, retainCap int, reset func(*T)) *Pool[T] {
	p := &Pool[T]{
		name:      name,
		retainCap: retainCap,
		reset:     reset,
	}
	p.backing = wpool.New(retainCap, func() interface{} {
		return new(T)
	})

	registryMu.Lock()
	if len(registry) < maxRegisteredPools {
		registry = append(registry, p)
	}
	registryMu.Unlock()

	return p
}

// Construct draws an object from the free list or allocates a fresh slab
// slot. Returns nil if and only if the underlying allocator failed.
func (p *Pool[T]) Construct() *T {
	item, err := p.backing.Get()
	if err != nil {
		return nil
	}
	obj, ok := item.(*T)
	if !ok || obj == nil {
		return nil
	}
	if p.reset != nil {
		p.reset(obj)
	}

	atomic.AddInt64(&p.numNew, 1)
	now := atomic.AddInt64(&p.numNow, 1)
	p.bumpMax(&p.maxNew, atomic.LoadInt64(&p.numNew))
	p.bumpMax(&p.maxNow, now)
	return obj
}

// Destroy returns obj to the free list unless it is already at retainCap,
// in which case the slot is dropped to the underlying allocator.
func (p *Pool[T]) Destroy(obj *T) {
	if obj == nil {
		return
	}
	p.backing.Put(obj)

	atomic.AddInt64(&p.numDel, 1)
	now := atomic.AddInt64(&p.numNow, -1)
	p.bumpMax(&p.maxDel, atomic.LoadInt64(&p.numDel))
	_ = now
}

func (p *Pool[T]) bumpMax(slot *int64, v int64) {
	for {
		cur := atomic.LoadInt64(slot)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(slot, cur, v) {
			return
		}
	}
}

// Stats reports the diagnostics counters for this pool.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Name:   p.name,
		New:    atomic.LoadInt64(&p.numNew),
		Del:    atomic.LoadInt64(&p.numDel),
		Now:    atomic.LoadInt64(&p.numNow),
		MaxNew: atomic.LoadInt64(&p.maxNew),
		MaxDel: atomic.LoadInt64(&p.maxDel),
		MaxNow: atomic.LoadInt64(&p.maxNow),
	}
}

// AllStats enumerates every registered pool in the process, up to
// maxRegisteredPools of them, for diagnostics dumps.
func AllStats() []Stats {
	registryMu.Lock()
	defer registryMu.Unlock()

	out := make([]Stats, 0, len(registry))
	for _, p := range registry {
		out = append(out, p.Stats())
	}
	return out
}

// AllStatsJSON renders AllStats as JSON for an embedding-layer diagnostics
// endpoint, using sonnet in place of encoding/json for the same reason the
// evm_triarb pack repo does: it is a drop-in Marshaler with lower overhead.
func AllStatsJSON() ([]byte, error) {
	return sonnet.Marshal(AllStats())
}
