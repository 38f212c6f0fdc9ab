package ndn

import (
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
)

// Face is a packet-level transport: it moves raw, already-TLV-encoded
// frames to and from a peer, with no notion of Interest/Data semantics.
// The sync engine is built on top of Face, not on a full NDN forwarder.
type Face interface {
	// String returns a human-readable description of the face.
	String() string

	// IsRunning returns true if the face is currently open.
	IsRunning() bool

	// IsLocal returns true if the face talks to a peer on the same host.
	IsLocal() bool

	// Open starts the face. OnPacket and OnError must be set first.
	Open() error

	// Close stops the face.
	Close() error

	// Send writes an already-encoded wire to the peer.
	Send(pkt enc.Wire) error

	// OnPacket sets the callback invoked for every received frame.
	OnPacket(onPkt func(frame []byte))

	// OnError sets the callback invoked when the face fails.
	OnError(onError func(err error))

	// OnUp registers a callback fired when the face transitions to up.
	OnUp(onUp func()) (cancel func())

	// OnDown registers a callback fired when the face transitions to down.
	OnDown(onDown func()) (cancel func())
}

// Timer abstracts wall-clock time and deferred execution so the sync
// engine's reconciliation and retransmission timers can be driven by a
// deterministic fake clock in tests.
type Timer interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks the calling goroutine for the given duration.
	Sleep(d time.Duration)

	// Schedule runs f after d elapses, returning a cancel function.
	// The cancel function returns an error if the event was already
	// canceled; cancelling an event that already fired returns nil.
	Schedule(d time.Duration, f func()) (cancel func() error)

	// Nonce returns a fresh random nonce (DummyTimer returns a fixed
	// one). The sync engine draws its jitter from math/rand, not from
	// Nonce.
	Nonce() []byte
}

// Store is a name-indexed byte blob store, used to persist published
// DataBlocks so late-joining or recovering peers can be served content
// for sequence numbers they are missing.
type Store interface {
	// Get returns the wire for name. If prefix is true and no exact
	// match exists, the newest descendant of name is returned instead.
	Get(name enc.Name, prefix bool) ([]byte, error)

	// Put stores wire under name.
	Put(name enc.Name, wire []byte) error

	// Remove deletes the exact entry for name, if any.
	Remove(name enc.Name) error

	// RemovePrefix deletes every entry under prefix, prefix included.
	RemovePrefix(prefix enc.Name) error

	// RemoveFlatRange deletes every direct child of prefix whose final
	// component falls within [first, last] in TLV byte order.
	RemoveFlatRange(prefix enc.Name, first enc.Component, last enc.Component) error

	// Begin starts a write transaction, returning a Store bound to it.
	Begin() (Store, error)

	// Commit persists a transaction started with Begin.
	Commit() error

	// Rollback discards a transaction started with Begin.
	Rollback() error
}
