// Package sync implements the reconciliation core of a full-set
// synchronization protocol: peers exchange IBLT-compressed digests of
// their (prefix, seq) sets and reconstruct the difference on mismatch.
package sync

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/iblt"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	"github.com/named-data/ndnd/std/types/lockfree"
)

// Config holds the per-engine protocol parameters.
type Config struct {
	// ExpectedEntries sizes the IBLT; shared by all peers in a group.
	ExpectedEntries int
	// RequestLifetime bounds how long our outbound request stays live.
	RequestLifetime time.Duration
	// ReplyFreshness is the staleness bound on a standard reply.
	ReplyFreshness time.Duration
	// LowFreshness is the staleness bound on a compromise reply sent
	// when decoding failed but we appear to have data the peer lacks.
	LowFreshness time.Duration
	// Threshold is the diff-size ceiling above which an undecoded
	// diff is abandoned rather than retried.
	Threshold int
	// JitterMin/JitterMax bound the uniform jitter added to scheduled
	// events (typically [100, 500] ms).
	JitterMin, JitterMax time.Duration
	// DigestCompression/ContentCompression name the codec applied to
	// the IBLT component and to State replies, respectively. Both
	// sides of a sync group must agree.
	DigestCompression, ContentCompression CompressionScheme
}

// DefaultConfig returns the protocol's suggested defaults.
func DefaultConfig() Config {
	return Config{
		ExpectedEntries:    85,
		RequestLifetime:    4 * time.Second,
		ReplyFreshness:     1600 * time.Millisecond,
		LowFreshness:       10 * time.Millisecond,
		Threshold:          42, // expectedEntries / 2
		JitterMin:          100 * time.Millisecond,
		JitterMax:          500 * time.Millisecond,
		DigestCompression:  CompressionNone,
		ContentCompression: CompressionNone,
	}
}

// MissingDataInfo describes one range of sequence numbers the engine
// just learned it was missing for prefix, delivered via onUpdate.
type MissingDataInfo struct {
	Prefix  enc.Name
	LowSeq  uint64
	HighSeq uint64
	Block   []byte
}

// SyncEngine drives the protocol: it advertises its digest, answers
// peer requests, applies replies, and exposes PublishName for local
// updates. Every public method enqueues a closure onto a single task
// queue drained by one goroutine (run), so handler bodies never race
// each other and no lock is needed anywhere in the protocol logic.
type SyncEngine struct {
	cfg       Config
	transport Transport
	timer     ndn.Timer
	store     ndn.Store
	syncRoot  enc.Name
	onUpdate  func([]MissingDataInfo)

	digest   *DigestEngine
	registry *PrefixRegistry

	tasks   *lockfree.YiQueue[func()]
	stopped chan struct{}

	// actor-owned: touched only inside run's goroutine.
	outboundCancel   func()
	outboundName     enc.Name
	unregisterFilter func()
	pending          map[string]*pendingEntry
	waiting          map[string]*waitingEntry

	// lastNegative and lastPeerTable hold the negative half and the
	// peer table of whatever diff is currently being acted on by
	// handleRequest/satisfyPending, so isFutureHash and registerPending
	// can consult them without threading extra parameters through
	// sendMissingData/replyEverything.
	lastNegative  map[uint32]struct{}
	lastPeerTable *iblt.Table
}

// NewSyncEngine constructs an engine rooted at syncRoot. defaultUserPrefix,
// if non-nil, is registered immediately (AddUserNode). onUpdate is
// invoked whenever a reply advances local state.
func NewSyncEngine(cfg Config, transport Transport, timer ndn.Timer, store ndn.Store, syncRoot enc.Name, defaultUserPrefix enc.Name, onUpdate func([]MissingDataInfo)) *SyncEngine {
	e := &SyncEngine{
		cfg:       cfg,
		transport: transport,
		timer:     timer,
		store:     store,
		syncRoot:  syncRoot.Clone(),
		onUpdate:  onUpdate,
		digest:    NewDigestEngine(cfg.ExpectedEntries),
		registry:  NewPrefixRegistry(),
		tasks:     lockfree.NewYiQueue[func()](),
		stopped:   make(chan struct{}),
		pending:   make(map[string]*pendingEntry),
		waiting:   make(map[string]*waitingEntry),
	}
	if defaultUserPrefix != nil {
		e.registry.AddPrefix(defaultUserPrefix)
	}
	return e
}

// jitter returns a random duration in [JitterMin, JitterMax), or
// JitterMin when the range is empty.
func (e *SyncEngine) jitter() time.Duration {
	lo, hi := e.cfg.JitterMin, e.cfg.JitterMax
	if hi <= lo {
		return lo
	}
	span := hi - lo
	return lo + time.Duration(rand.Int64N(int64(span)))
}

// enqueue schedules f to run on the actor goroutine. Safe to call from
// any goroutine, including from within a Transport/Timer callback.
func (e *SyncEngine) enqueue(f func()) {
	e.tasks.Push(f)
}

// Start registers the sync prefix's interest filter and begins the
// actor loop and the periodic outbound-request cycle.
func (e *SyncEngine) Start() {
	e.unregisterFilter = e.transport.RegisterInterestFilter(e.syncRoot, e.onRequest)
	go e.run()
	e.enqueue(e.sendSyncRequest)
}

// Stop cancels the in-flight fetcher, unregisters the filter, and
// halts the actor loop. No callback fires after Stop returns.
func (e *SyncEngine) Stop() {
	e.enqueue(func() {
		if e.outboundCancel != nil {
			e.outboundCancel()
			e.outboundCancel = nil
		}
		if e.unregisterFilter != nil {
			e.unregisterFilter()
		}
		close(e.stopped)
	})
	<-e.stopped
}

// run drains tasks until Stop closes e.stopped. YiQueue.Pop returns
// ok=false once the queue is momentarily empty rather than blocking,
// so between drains run waits on the queue's Notify channel instead of
// busy-spinning.
func (e *SyncEngine) run() {
	for {
		select {
		case <-e.stopped:
			return
		default:
		}

		task, ok := e.tasks.Pop()
		if !ok {
			select {
			case <-e.stopped:
				return
			case <-e.tasks.Notify:
			}
			continue
		}
		task()
	}
}

// --- outbound digest requests ---

// sendSyncRequest issues <syncRoot>/<compressedIBLT>, canceling any
// prior in-flight request first: at most one outbound request is ever
// live.
func (e *SyncEngine) sendSyncRequest() {
	if e.outboundCancel != nil {
		e.outboundCancel()
		e.outboundCancel = nil
	}

	comp, err := e.encodeDigestComponent()
	if err != nil {
		log.Error(nil, "failed to encode outbound digest", "err", err)
		return
	}
	name := e.syncRoot.Append(comp)
	e.outboundName = name

	e.outboundCancel = e.transport.SendRequest(name, e.cfg.RequestLifetime, func(reply []byte, err error) {
		e.enqueue(func() { e.onSyncReply(name, reply, err) })
	})

	// Schedule the steady advertisement loop: a replacement is issued
	// at requestLifetime/2 + jitter regardless of whether this one is
	// ever answered, which also recovers from silent loss.
	e.timer.Schedule(e.cfg.RequestLifetime/2+e.jitter(), func() {
		e.enqueue(e.sendSyncRequest)
	})
}

func (e *SyncEngine) encodeDigestComponent() (enc.Component, error) {
	comp := e.digest.SerializeToNameComponent()
	compressed, err := compress(e.cfg.DigestCompression, comp.Val)
	if err != nil {
		return enc.Component{}, err
	}
	return enc.NewBytesComponent(iblt.TypeIBLTComponent, compressed), nil
}

func (e *SyncEngine) decodeDigestComponent(c enc.Component) (*iblt.Table, error) {
	raw, err := decompress(e.cfg.DigestCompression, c.Val)
	if err != nil {
		return nil, err
	}
	return iblt.FromComponent(enc.NewBytesComponent(iblt.TypeIBLTComponent, raw))
}

// onSyncReply handles the reply to our own outstanding request. A
// reply for anything but the last-issued request name belongs to a
// superseded fetcher and is ignored.
func (e *SyncEngine) onSyncReply(requestName enc.Name, reply []byte, err error) {
	if !requestName.Equal(e.outboundName) {
		return
	}
	e.outboundCancel = nil

	if err != nil {
		if errors.Is(err, ErrTransportNack) {
			e.timer.Schedule(e.jitter(), func() { e.enqueue(e.sendSyncRequest) })
		}
		// other errors: next periodic emission will retry.
		return
	}

	e.applyReply(requestName, reply)
}

// applyReply decodes reply and advances PrefixRegistry for every entry
// that is new or newer than what we have. If anything changed, it
// invokes onUpdate then immediately issues a fresh outbound request.
func (e *SyncEngine) applyReply(from enc.Name, reply []byte) {
	raw, err := decompress(e.cfg.ContentCompression, reply)
	if err != nil {
		e.dropMalformedReply(from, err)
		return
	}
	state, err := DecodeState(raw)
	if err != nil {
		e.dropMalformedReply(from, err)
		return
	}

	if e.store != nil {
		e.store.Put(from, reply)
	}

	// someone else's data just satisfied this request name; a pending
	// entry for it is obsolete.
	if entry, ok := e.pending[from.TlvStr()]; ok {
		entry.cancelEvict()
		delete(e.pending, from.TlvStr())
	}

	var updates []MissingDataInfo
	for _, entry := range state.Entries() {
		if len(entry.Name) == 0 {
			continue
		}
		prefix := entry.Name.Prefix(-1)
		seq := entry.Name.At(-1).NumberVal()

		cur, known := e.registry.CurrentSeq(prefix)
		if !known {
			e.registry.AddPrefix(prefix)
			cur = 0
		}
		if !known || seq > cur {
			updates = append(updates, MissingDataInfo{
				Prefix:  prefix,
				LowSeq:  cur + 1,
				HighSeq: seq,
				Block:   entry.Block,
			})
			if err := e.registry.Advance(e.digest.Table(), prefix, seq, entry.Block); err != nil {
				log.Warn(nil, "failed to advance registry from reply", "prefix", prefix.String(), "err", err)
			}
		}
	}

	if len(updates) > 0 {
		if e.onUpdate != nil {
			e.onUpdate(updates)
		}
		e.sendSyncRequest()
	}
}

// dropMalformedReply logs a reply that failed the State grammar and
// schedules a fresh outbound request; local state is left untouched.
func (e *SyncEngine) dropMalformedReply(from enc.Name, err error) {
	log.Warn(nil, "dropping malformed state reply", "err", &ErrMalformedState{From: from, Err: err})
	e.timer.Schedule(e.jitter(), func() { e.enqueue(e.sendSyncRequest) })
}

// --- inbound request handling ---

// onRequest is installed as the transport's interest filter handler.
// It runs synchronously from the transport's perspective but defers
// all protocol work to the actor via enqueue, answering later through
// Transport.Reply when the engine decides to respond.
func (e *SyncEngine) onRequest(name enc.Name) (reply []byte, ok bool) {
	e.enqueue(func() { e.handleRequest(name) })
	return nil, false
}

// parseRequestShape recognizes <syncRoot>/<iblt> or
// <syncRoot>/<iblt>/<version>/<segmentNo>, returning the IBLT
// component and the store-lookup name for the segment-retransmit
// shape (nil if the request wasn't that shape). Any other component
// count is reported via ok=false and the request must be dropped
// silently; the components' contents are not checked here.
func (e *SyncEngine) parseRequestShape(name enc.Name) (ibltComp enc.Component, segmentName enc.Name, ok bool) {
	root := len(e.syncRoot)
	switch len(name) - root {
	case 1:
		return name.At(-1), nil, true
	case 3:
		return name.At(-3), name, true
	default:
		return enc.Component{}, nil, false
	}
}

func (e *SyncEngine) handleRequest(name enc.Name) {
	ibltComp, segmentName, ok := e.parseRequestShape(name)
	if !ok {
		return // unrecognized shape, drop silently
	}

	if segmentName != nil && e.store != nil {
		if data, err := e.store.Get(segmentName, false); err == nil && data != nil {
			e.transport.Reply(name, data, e.cfg.ReplyFreshness)
			return
		}
		// fall through: handle as a fresh request on the embedded IBLT
	}

	peerTable, err := e.decodeDigestComponent(ibltComp)
	if err != nil {
		log.Warn(nil, "dropping peer request", "err", fmt.Errorf("%w: %v", ErrMalformedIBLTComponent, err))
		return
	}

	diff, err := e.digest.Diff(peerTable)
	if err != nil {
		log.Warn(nil, "failed to diff peer iblt", "err", err)
		return
	}

	if !diff.Decoded {
		e.handleUndecodedDiff(name, peerTable, diff)
		return
	}

	if len(diff.Negative) > 0 {
		// the peer holds entries we lack: hold off and hope someone
		// else answers; on second sight, re-advertise instead.
		e.deferOrRequest(name)
		return
	}

	e.lastNegative = diff.Negative
	e.lastPeerTable = peerTable

	if len(diff.Positive) > 0 {
		e.sendMissingData(name, diff.Positive)
		return
	}

	// decoded, both empty: nothing to send, no suppression possible.
	e.registerPending(name, peerTable)
}

// handleUndecodedDiff decides what to do when the subtracted tables
// would not peel: compare raw element counts to guess which side is
// ahead, and either defer, dump everything we own, or stay silent.
func (e *SyncEngine) handleUndecodedDiff(name enc.Name, peerTable *iblt.Table, diff DiffResult) {
	ownN, peerN := e.digest.NumElements(), peerTable.NumElements()

	if peerN > ownN {
		e.deferOrRequest(name)
		return
	}

	if ownN > peerN || (ownN == peerN && len(diff.Positive) > 0) {
		e.replyEverything(name)
		return
	}

	// ownN == peerN, positive empty, negative non-empty: nothing useful
	// to contribute; wait for someone else to speak.
}

// deferOrRequest implements the first-sight/second-sight defer logic
// used when the peer appears to be ahead of us. First sight: remember
// name and schedule a re-entry after jitter. Second sight (the
// scheduled closure firing): forget name and send our own outbound
// request instead of replying.
func (e *SyncEngine) deferOrRequest(name enc.Name) {
	key := name.TlvStr()
	if _, already := e.waiting[key]; already {
		return
	}

	cancel := e.timer.Schedule(e.jitter(), func() {
		e.enqueue(func() {
			if _, ok := e.waiting[key]; !ok {
				return
			}
			delete(e.waiting, key)
			e.sendSyncRequest()
		})
	})
	e.waiting[key] = &waitingEntry{cancel: cancel}
}

// sendMissingData replies with our current data for the resolved
// positive prefixes, suppressing any the future-hash probe catches.
// It reports whether a reply was actually sent, so satisfyPending can
// tell a satisfied entry from one that is still unanswerable.
func (e *SyncEngine) sendMissingData(name enc.Name, positive map[uint32]struct{}) (replied bool) {
	state := NewState()
	anySuppressed := false

	for h := range positive {
		prefix, ok := e.registry.PrefixOfHash(h)
		if !ok {
			continue
		}
		seq, ok := e.registry.CurrentSeq(prefix)
		if !ok || seq == 0 {
			continue
		}
		if e.isFutureHash(prefix, seq) {
			anySuppressed = true
			continue
		}
		block, _ := e.registry.BlockFor(prefix, seq)
		state.Add(nameAtSeq(prefix, seq), block)
	}

	if len(state.Entries()) == 0 {
		if !anySuppressed {
			e.registerPending(name, e.lastPeerTable)
		}
		return false
	}

	e.sendState(name, state, e.cfg.ReplyFreshness)
	return true
}

// isFutureHash implements the future-hash probe: the peer has already
// announced a sequence newer than ours for prefix if
// murmur3(prefix ++ (seq+1), NHashCheck) lands in its negative set.
// Replying with our older entry would only advertise stale data and
// invite a redundant round.
func (e *SyncEngine) isFutureHash(prefix enc.Name, seq uint64) bool {
	h := iblt.HashName(prefix.Append(enc.NewSequenceNumComponent(seq + 1)))
	_, found := e.lastNegative[h]
	return found
}

// replyEverything walks the whole registry and sends every published
// (prefix, seq), used when decoding failed but we appear to be ahead.
// It replies at lowFreshness: we never actually decoded the peer's
// IBLT here, so this is a best-effort compromise reply rather than one
// backed by a resolved diff.
func (e *SyncEngine) replyEverything(name enc.Name) {
	state := NewState()
	for _, entry := range e.registry.All() {
		if entry.Seq == 0 {
			continue
		}
		state.Add(nameAtSeq(entry.Prefix, entry.Seq), entry.LastBlock)
	}
	if len(state.Entries()) == 0 {
		return
	}
	e.sendState(name, state, e.cfg.LowFreshness)
}

func (e *SyncEngine) sendState(name enc.Name, state *State, freshness time.Duration) {
	payload, err := compress(e.cfg.ContentCompression, state.Encode())
	if err != nil {
		log.Error(nil, "failed to compress state reply", "err", err)
		return
	}
	if e.store != nil {
		e.store.Put(name, payload)
	}

	// Answering a request whose name matches our own outstanding one:
	// the same data satisfies both sides, so stop our fetcher before it
	// swallows the reply, and renew the advertisement right after. This
	// keeps the loop tight when two peers advertise identical digests.
	if name.Equal(e.outboundName) {
		if e.outboundCancel != nil {
			e.outboundCancel()
			e.outboundCancel = nil
		}
		e.transport.Reply(name, payload, freshness)
		e.sendSyncRequest()
		return
	}

	e.transport.Reply(name, payload, freshness)
}

// registerPending remembers a request we had nothing to send for,
// until either it expires or a local publish satisfies it.
func (e *SyncEngine) registerPending(name enc.Name, peerTable *iblt.Table) {
	if peerTable == nil {
		return
	}
	key := name.TlvStr()
	if _, already := e.pending[key]; already {
		return
	}
	cancel := e.timer.Schedule(e.cfg.RequestLifetime, func() {
		e.enqueue(func() { delete(e.pending, key) })
	})
	e.pending[key] = &pendingEntry{requestName: name, peerTable: peerTable, cancelEvict: cancel}
}

// --- publishing ---

// PublishName advances prefix to seq (or current+1 if seq is nil) with
// no piggybacked block, then attempts to satisfy pending requests.
func (e *SyncEngine) PublishName(prefix enc.Name, seq *uint64) error {
	return e.publish(prefix, seq, nil)
}

// PublishNameAndData is PublishName with a piggybacked block.
func (e *SyncEngine) PublishNameAndData(prefix enc.Name, block []byte, seq *uint64) error {
	return e.publish(prefix, seq, block)
}

func (e *SyncEngine) publish(prefix enc.Name, seq *uint64, block []byte) error {
	errCh := make(chan error, 1)
	e.enqueue(func() {
		cur, known := e.registry.CurrentSeq(prefix)
		if !known {
			errCh <- ErrUnknownPrefix
			return
		}
		newSeq := cur + 1
		if seq != nil {
			newSeq = *seq
		}
		if newSeq <= cur {
			// a sequence can only ever move forward
			errCh <- nil
			return
		}
		if err := e.registry.Advance(e.digest.Table(), prefix, newSeq, block); err != nil {
			errCh <- err
			return
		}
		e.satisfyPending()
		errCh <- nil
	})
	return <-errCh
}

// satisfyPending re-diffs every pending entry against the current
// IBLT; entries that are now answerable are answered and removed,
// entries whose diff is still undecoded and at or above threshold (or
// empty in both directions) are dropped, and the rest stay pending.
func (e *SyncEngine) satisfyPending() {
	for key, entry := range e.pending {
		diff, err := e.digest.Diff(entry.peerTable)
		if err != nil {
			entry.cancelEvict()
			delete(e.pending, key)
			continue
		}

		if !diff.Decoded {
			total := len(diff.Positive) + len(diff.Negative)
			if total >= e.cfg.Threshold || total == 0 {
				entry.cancelEvict()
				delete(e.pending, key)
			}
			continue
		}

		if len(diff.Positive) == 0 {
			continue
		}

		e.lastNegative = diff.Negative
		e.lastPeerTable = entry.peerTable
		if e.sendMissingData(entry.requestName, diff.Positive) {
			entry.cancelEvict()
			delete(e.pending, key)
		}
	}
}

// --- prefix registration ---

// AddUserNode registers prefix as locally owned, starting unpublished.
func (e *SyncEngine) AddUserNode(prefix enc.Name) {
	e.enqueue(func() { e.registry.AddPrefix(prefix) })
}

// RemoveUserNode forgets prefix, erasing its published entry from the
// digest so peers stop seeing it in our advertisements.
func (e *SyncEngine) RemoveUserNode(prefix enc.Name) {
	e.enqueue(func() { e.registry.RemovePrefix(e.digest.Table(), prefix) })
}

// GetSeqNo returns prefix's current sequence, and whether it is
// registered at all.
func (e *SyncEngine) GetSeqNo(prefix enc.Name) (seq uint64, known bool) {
	type result struct {
		seq   uint64
		known bool
	}
	ch := make(chan result, 1)
	e.enqueue(func() {
		s, k := e.registry.CurrentSeq(prefix)
		ch <- result{s, k}
	})
	r := <-ch
	return r.seq, r.known
}
