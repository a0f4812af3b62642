package worker

import (
	"github.com/twmb/murmur3"

	"github.com/ouyang506/gamenetcore/internal/reactor"
)

// Group fans requests out across a fixed set of Workers by a caller-
// supplied key, so all requests for the same key are always serviced by
// the same underlying resource connection and therefore observe the
// per-key ordering the embedding layer expects (e.g. all writes for one
// player id going through one DB worker).
//
// Grounded on the actor package's mailbox routing
// (src/framework/actor/system.go: murmur32.Sum32(key) feeding a sharded
// map) — generalized from routing actor mailboxes to routing Worker
// instances, and using a plain slice instead of ConcurrentMap since a
// Group's shard list is fixed at construction and needs no map at all.
type Group struct {
	workers []*Worker
}

// NewGroup creates len(conns) Workers, one per Connector, and returns a
// Group that routes by murmur3(key) % len(conns); the Workers do not run
// until Start. onReady/onResult are invoked as for a standalone Worker,
// with the shard index passed as their first argument.
func NewGroup(conns []Connector, cfg Config, onReady func(shard int), onResult func(shard int, res Result)) (*Group, error) {
	g := &Group{workers: make([]*Worker, len(conns))}
	for i, conn := range conns {
		idx := i
		w, err := New(conn, cfg,
			func() {
				if onReady != nil {
					onReady(idx)
				}
			},
			func(res Result) {
				if onResult != nil {
					onResult(idx, res)
				}
			},
		)
		if err != nil {
			return nil, err
		}
		g.workers[i] = w
	}
	return g, nil
}

// Register hands every shard's wake fd to the Reactor as a WorkerSource.
func (g *Group) Register(r *reactor.Reactor) error {
	for _, w := range g.workers {
		if err := r.RegisterWorker(w); err != nil {
			return err
		}
	}
	return nil
}

// Start launches every shard's goroutine.
func (g *Group) Start() {
	for _, w := range g.workers {
		w.Start()
	}
}

// Stop signals every shard to stop; it does not block for them to exit.
func (g *Group) Stop() {
	for _, w := range g.workers {
		w.Stop()
	}
}

// Wait blocks until every shard's goroutine has exited.
func (g *Group) Wait() {
	for _, w := range g.workers {
		w.Wait()
	}
}

// Shard returns the worker index key routes to.
func (g *Group) Shard(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(g.workers)))
}

// Submit routes req to the shard owning key.
func (g *Group) Submit(key string, req Request) {
	g.workers[g.Shard(key)].Submit(req)
}

// Worker returns the shard at index i, e.g. for direct BusyJob inspection.
func (g *Group) Worker(i int) *Worker {
	return g.workers[i]
}

// BusyJob sums outstanding work across every shard.
func (g *Group) BusyJob() (finished, unfinished int) {
	for _, w := range g.workers {
		f, u := w.BusyJob()
		finished += f
		unfinished += u
	}
	return finished, unfinished
}
