package sync

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
)

// Transport is the request/response collaborator SyncEngine consumes:
// sendRequest with cancel, and one registered interest filter per
// sync prefix. It deliberately knows nothing about IBLTs or States,
// only names and opaque bytes, so the engine's protocol logic stays
// independent of how requests actually travel.
type Transport interface {
	// SendRequest issues a request for name, outstanding for at most
	// lifetime. onReply is invoked exactly once, with either the
	// reply bytes or a non-nil error (ErrTransportNack for an
	// explicit NACK, any other error for a timeout/transport fault).
	// The returned cancel stops waiting for a reply; onReply is not
	// invoked after cancel returns.
	SendRequest(name enc.Name, lifetime time.Duration, onReply func(reply []byte, err error)) (cancel func())

	// RegisterInterestFilter installs handler as the sole responder
	// for requests under prefix. handler returns (reply, true) to
	// answer immediately, or (nil, false) to answer later via Reply.
	RegisterInterestFilter(prefix enc.Name, handler func(name enc.Name) (reply []byte, ok bool)) (unregister func())

	// Reply satisfies a previously-deferred request by name (used by
	// satisfyPending and segment retransmits). freshness is the
	// staleness bound the caller wants attached to the data: a
	// transport backed by real NDN Data carries it as the packet's
	// FreshnessPeriod.
	Reply(name enc.Name, data []byte, freshness time.Duration)
}

// --- in-process transport, for deterministic tests ---

// LoopbackHub wires any number of LoopbackTransports together so
// requests issued by one are delivered to every other's registered
// filter, with no real network involved.
type LoopbackHub struct {
	mu      sync.Mutex
	members []*LoopbackTransport
}

// NewLoopbackHub returns an empty hub.
func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{}
}

func (h *LoopbackHub) join(t *LoopbackTransport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members = append(h.members, t)
}

func (h *LoopbackHub) broadcast(from *LoopbackTransport, name enc.Name) {
	h.mu.Lock()
	peers := make([]*LoopbackTransport, len(h.members))
	copy(peers, h.members)
	h.mu.Unlock()

	for _, p := range peers {
		if p == from {
			continue
		}
		p.deliver(from, name)
	}
}

// reply satisfies every member holding a pending callback for name,
// the way data satisfies all outstanding interests for that name on an
// NDN link. A deferred reply (the common case: SyncEngine's interest
// handler always answers (nil, false) and replies later via
// Transport.Reply) is issued by the responder's own transport, not the
// original requester's, so the lookup has to go through the hub rather
// than a single instance's pending map. Two members that advertised
// identical digests share one request name; both must see the reply.
func (h *LoopbackHub) reply(name enc.Name, data []byte) {
	h.mu.Lock()
	peers := make([]*LoopbackTransport, len(h.members))
	copy(peers, h.members)
	h.mu.Unlock()

	key := name.TlvStr()
	for _, p := range peers {
		p.mu.Lock()
		cb, ok := p.pending[key]
		if ok {
			delete(p.pending, key)
		}
		p.mu.Unlock()
		if ok {
			cb(data, nil)
		}
	}
}

// LoopbackTransport is a Transport backed by a LoopbackHub and a
// Timer, so tests can drive reconciliation deterministically via
// DummyTimer.MoveForward instead of real wall-clock sleeps.
type LoopbackTransport struct {
	hub   *LoopbackHub
	timer ndn.Timer

	mu      sync.Mutex
	filter  enc.Name
	handler func(name enc.Name) (reply []byte, ok bool)
	pending map[string]func(reply []byte, err error)
}

// NewLoopbackTransport joins hub using timer for request expiry.
func NewLoopbackTransport(hub *LoopbackHub, timer ndn.Timer) *LoopbackTransport {
	t := &LoopbackTransport{
		hub:     hub,
		timer:   timer,
		pending: make(map[string]func(reply []byte, err error)),
	}
	hub.join(t)
	return t
}

func (t *LoopbackTransport) SendRequest(name enc.Name, lifetime time.Duration, onReply func(reply []byte, err error)) (cancel func()) {
	key := name.TlvStr()

	t.mu.Lock()
	t.pending[key] = onReply
	t.mu.Unlock()

	cancelTimer := t.timer.Schedule(lifetime, func() {
		t.mu.Lock()
		cb, ok := t.pending[key]
		if ok {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		if ok {
			cb(nil, fmt.Errorf("request timed out"))
		}
	})

	t.hub.broadcast(t, name)

	return func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		cancelTimer()
	}
}

func (t *LoopbackTransport) RegisterInterestFilter(prefix enc.Name, handler func(name enc.Name) (reply []byte, ok bool)) (unregister func()) {
	t.mu.Lock()
	t.filter = prefix
	t.handler = handler
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.filter, t.handler = nil, nil
		t.mu.Unlock()
	}
}

func (t *LoopbackTransport) Reply(name enc.Name, data []byte, freshness time.Duration) {
	t.hub.reply(name, data)
}

// deliver is called by the hub when from issues a request for name;
// it invokes our handler if name falls under our registered filter.
func (t *LoopbackTransport) deliver(from *LoopbackTransport, name enc.Name) {
	t.mu.Lock()
	filter, handler := t.filter, t.handler
	t.mu.Unlock()

	if handler == nil || !filter.IsPrefix(name) {
		return
	}
	if reply, ok := handler(name); ok {
		// handler's immediate-reply path carries no freshness value of
		// its own; SyncEngine never takes it (onRequest always answers
		// (nil, false) and replies later via Reply), so this is only
		// reachable from a hand-written Transport.RegisterInterestFilter
		// handler in a test.
		from.Reply(name, reply, 0)
	}
}

// --- real transport, framing requests/replies over an ndn.Face ---

const (
	frameRequest byte = 0
	frameReply   byte = 1
	frameNack    byte = 2
)

// FaceTransport implements Transport over a raw ndn.Face, using a
// minimal length-prefixed frame (kind byte, name, payload) rather than
// full NDN Interest/Data encoding: this adapter only needs to carry
// names and bytes reliably between peers, not interoperate with a
// generic NDN forwarder.
type FaceTransport struct {
	face  ndn.Face
	timer ndn.Timer

	mu      sync.Mutex
	filter  enc.Name
	handler func(name enc.Name) (reply []byte, ok bool)
	pending map[string]func(reply []byte, err error)
}

// NewFaceTransport wraps face, using timer for request expiry.
func NewFaceTransport(face ndn.Face, timer ndn.Timer) *FaceTransport {
	t := &FaceTransport{
		face:    face,
		timer:   timer,
		pending: make(map[string]func(reply []byte, err error)),
	}
	face.OnPacket(t.onPacket)
	face.OnError(func(error) {})
	return t
}

// encodeFrame lays out (kind byte, freshness millis uint32, name length
// uint32, name bytes, payload). freshness only has meaning for
// frameReply; it's 0 for requests and nacks.
func encodeFrame(kind byte, name enc.Name, payload []byte, freshness time.Duration) enc.Wire {
	nameBytes := name.Bytes()
	head := make([]byte, 1+4+4)
	head[0] = kind
	binary.BigEndian.PutUint32(head[1:5], uint32(freshness.Milliseconds()))
	binary.BigEndian.PutUint32(head[5:9], uint32(len(nameBytes)))
	return enc.Wire{head, nameBytes, payload}
}

func decodeFrame(frame []byte) (kind byte, name enc.Name, payload []byte, freshness time.Duration, err error) {
	if len(frame) < 9 {
		return 0, nil, nil, 0, fmt.Errorf("frame too short")
	}
	kind = frame[0]
	freshness = time.Duration(binary.BigEndian.Uint32(frame[1:5])) * time.Millisecond
	nlen := int(binary.BigEndian.Uint32(frame[5:9]))
	if len(frame) < 9+nlen {
		return 0, nil, nil, 0, fmt.Errorf("frame truncated")
	}
	name, err = enc.NameFromBytes(frame[9 : 9+nlen])
	if err != nil {
		return 0, nil, nil, 0, err
	}
	payload = frame[9+nlen:]
	return
}

func (t *FaceTransport) onPacket(frame []byte) {
	kind, name, payload, freshness, err := decodeFrame(frame)
	if err != nil {
		return
	}

	switch kind {
	case frameRequest:
		t.mu.Lock()
		filter, handler := t.filter, t.handler
		t.mu.Unlock()
		if handler == nil || !filter.IsPrefix(name) {
			return
		}
		if reply, ok := handler(name); ok {
			t.face.Send(encodeFrame(frameReply, name, reply, 0))
		}
	case frameReply, frameNack:
		_ = freshness // carried for a real downstream cache; this adapter has none to populate
		key := name.TlvStr()
		t.mu.Lock()
		cb, ok := t.pending[key]
		if ok {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		if !ok {
			return
		}
		if kind == frameNack {
			cb(nil, ErrTransportNack)
		} else {
			cb(payload, nil)
		}
	}
}

func (t *FaceTransport) SendRequest(name enc.Name, lifetime time.Duration, onReply func(reply []byte, err error)) (cancel func()) {
	key := name.TlvStr()

	t.mu.Lock()
	t.pending[key] = onReply
	t.mu.Unlock()

	cancelTimer := t.timer.Schedule(lifetime, func() {
		t.mu.Lock()
		cb, ok := t.pending[key]
		if ok {
			delete(t.pending, key)
		}
		t.mu.Unlock()
		if ok {
			cb(nil, fmt.Errorf("request timed out"))
		}
	})

	t.face.Send(encodeFrame(frameRequest, name, nil, 0))

	return func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
		cancelTimer()
	}
}

func (t *FaceTransport) RegisterInterestFilter(prefix enc.Name, handler func(name enc.Name) (reply []byte, ok bool)) (unregister func()) {
	t.mu.Lock()
	t.filter = prefix
	t.handler = handler
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.filter, t.handler = nil, nil
		t.mu.Unlock()
	}
}

func (t *FaceTransport) Reply(name enc.Name, data []byte, freshness time.Duration) {
	t.face.Send(encodeFrame(frameReply, name, data, freshness))
}
