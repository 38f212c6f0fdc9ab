package sync

import (
	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/iblt"
)

// pendingEntry is a peer request that could not be answered immediately:
// kept so a later publishName can satisfy it within its lifetime. The
// entry is keyed by the request's own name rather than referenced by
// pointer from its eviction timer, so the timer firing after the entry
// has already been satisfied is a harmless no-op map lookup.
type pendingEntry struct {
	requestName enc.Name
	peerTable   *iblt.Table // peer's IBLT at request time, for satisfyPending's re-diff
	cancelEvict func() error
}

// waitingEntry is the "first sight" bookkeeping for the defer-then-
// maybe-request logic used when a peer appears to be ahead. A deferred
// name is erased when its timer fires, so a name can only ever be
// deferred once before provoking a fresh outbound request.
type waitingEntry struct {
	cancel func() error
}
