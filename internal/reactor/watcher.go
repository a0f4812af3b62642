package reactor

// EventMask is the union of readiness interests a Watcher may register.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
)

// Callback is the per-fd event sink a Watcher is registered with. Sockets
// implement this to receive read/write readiness from the Reactor.
type Callback interface {
	OnFdEvent(fd int, mask EventMask)
}

// watcher is the Reactor-side registration of (fd, interest, callback). It
// refers back to its owner only through the Callback it was constructed
// with — never through raw ownership — so Socket close semantics stay
// simple (spec.md §3, Watcher).
type watcher struct {
	fd       int
	interest EventMask
	cb       Callback
}
