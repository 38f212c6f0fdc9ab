package sync

import (
	"testing"
	"time"

	"github.com/named-data/ndnd/std/engine/basic"
	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/iblt"
	"github.com/stretchr/testify/require"
)

// settle blocks until every task already enqueued on e has run, by
// exploiting the actor queue's single-consumer FIFO ordering: a
// closure that closes done can only run after everything pushed ahead
// of it.
func settle(e *SyncEngine) {
	done := make(chan struct{})
	e.enqueue(func() { close(done) })
	<-done
}

// recordingTransport is a Transport that never delivers anything on
// its own; it just remembers what the engine asked it to do, for
// white-box assertions on SendRequest/Reply call patterns.
type recordingTransport struct {
	sent             []enc.Name
	cancelled        []enc.Name
	repliedNames     []enc.Name
	repliedFreshness []time.Duration
}

func (r *recordingTransport) SendRequest(name enc.Name, lifetime time.Duration, onReply func(reply []byte, err error)) func() {
	r.sent = append(r.sent, name)
	idx := len(r.sent) - 1
	return func() { r.cancelled = append(r.cancelled, r.sent[idx]) }
}

func (r *recordingTransport) RegisterInterestFilter(prefix enc.Name, handler func(name enc.Name) (reply []byte, ok bool)) func() {
	return func() {}
}

func (r *recordingTransport) Reply(name enc.Name, data []byte, freshness time.Duration) {
	r.repliedNames = append(r.repliedNames, name)
	r.repliedFreshness = append(r.repliedFreshness, freshness)
}

// At most one outbound request is ever live; issuing a second one
// cancels the first.
func TestEngineSingleInFlightRequest(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	rt := &recordingTransport{}
	e := NewSyncEngine(cfg, rt, timer, nil, mustName(t, "/sync"), mustName(t, "/a"), nil)

	e.sendSyncRequest()
	require.Len(t, rt.sent, 1)
	require.Empty(t, rt.cancelled)

	e.sendSyncRequest()
	require.Len(t, rt.sent, 2)
	require.Len(t, rt.cancelled, 1)
	require.True(t, rt.cancelled[0].Equal(rt.sent[0]))
}

// The future-hash probe formula: murmur3(prefix++(seq+1), NHashCheck)
// must land in the set last diffed as negative.
func TestEngineFutureHashProbe(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	rt := &recordingTransport{}
	e := NewSyncEngine(cfg, rt, timer, nil, mustName(t, "/sync"), nil, nil)
	pa := mustName(t, "/a")

	e.lastNegative = map[uint32]struct{}{
		iblt.HashName(nameAtSeq(pa, 4)): {},
	}
	require.True(t, e.isFutureHash(pa, 3))

	e.lastNegative = map[uint32]struct{}{}
	require.False(t, e.isFutureHash(pa, 3))
}

// When the future-hash probe hits, the reply withholds the entry and
// does not register a pending entry either.
func TestEngineWithholdsFutureHashedEntry(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	rt := &recordingTransport{}
	e := NewSyncEngine(cfg, rt, timer, nil, mustName(t, "/sync"), nil, nil)
	pa := mustName(t, "/a")

	e.registry.AddPrefix(pa)
	require.NoError(t, e.registry.Advance(e.digest.Table(), pa, 3, nil))

	h3 := iblt.HashName(nameAtSeq(pa, 3))
	e.lastNegative = map[uint32]struct{}{
		iblt.HashName(nameAtSeq(pa, 4)): {},
	}

	reqName := mustName(t, "/sync/req")
	e.sendMissingData(reqName, map[uint32]struct{}{h3: {}})

	require.Empty(t, rt.repliedNames)
	require.Empty(t, e.pending)
}

// Same positive set, but nothing in negative collides with the
// candidate future hash: the engine replies normally.
func TestEngineRepliesWhenNotFutureHashed(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	rt := &recordingTransport{}
	e := NewSyncEngine(cfg, rt, timer, nil, mustName(t, "/sync"), nil, nil)
	pa := mustName(t, "/a")

	e.registry.AddPrefix(pa)
	require.NoError(t, e.registry.Advance(e.digest.Table(), pa, 3, nil))

	h3 := iblt.HashName(nameAtSeq(pa, 3))
	e.lastNegative = map[uint32]struct{}{}

	reqName := mustName(t, "/sync/req")
	e.sendMissingData(reqName, map[uint32]struct{}{h3: {}})

	require.Len(t, rt.repliedNames, 1)
	require.True(t, rt.repliedNames[0].Equal(reqName))
	require.Equal(t, cfg.ReplyFreshness, rt.repliedFreshness[0])
	require.Empty(t, e.pending)
}

// The compromise reply (we appear strictly ahead but never decoded the
// peer's request) carries lowFreshness, not replyFreshness.
func TestEngineFullReplyUsesLowFreshness(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	rt := &recordingTransport{}
	e := NewSyncEngine(cfg, rt, timer, nil, mustName(t, "/sync"), nil, nil)
	pa := mustName(t, "/a")

	e.registry.AddPrefix(pa)
	require.NoError(t, e.registry.Advance(e.digest.Table(), pa, 1, nil))

	reqName := mustName(t, "/sync/req")
	e.replyEverything(reqName)

	require.Len(t, rt.repliedNames, 1)
	require.Equal(t, cfg.LowFreshness, rt.repliedFreshness[0])
}

// Two peers with disjoint publication sets converge to a shared
// view of both prefixes after the reconciliation chain drains, driven
// entirely by reply-triggered re-advertisement (no timer tick needed:
// the initial exchange and every subsequent round are each satisfied
// synchronously off the back of a publishName call).
func TestEngineTwoPeerConvergence(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	hub := NewLoopbackHub()

	tA := NewLoopbackTransport(hub, timer)
	tB := NewLoopbackTransport(hub, timer)

	root := mustName(t, "/sync")
	pa := mustName(t, "/a")
	pb := mustName(t, "/b")

	var updatesA, updatesB []MissingDataInfo
	eA := NewSyncEngine(cfg, tA, timer, nil, root, pa, func(u []MissingDataInfo) {
		updatesA = append(updatesA, u...)
	})
	eB := NewSyncEngine(cfg, tB, timer, nil, root, pb, func(u []MissingDataInfo) {
		updatesB = append(updatesB, u...)
	})

	eA.Start()
	eB.Start()
	defer eA.Stop()
	defer eB.Stop()

	// drain the initial empty-digest exchange before publishing.
	for range 3 {
		settle(eA)
		settle(eB)
	}

	for seq := uint64(1); seq <= 5; seq++ {
		s := seq
		require.NoError(t, eA.PublishName(pa, &s))
		require.NoError(t, eB.PublishName(pb, &s))
		for range 6 {
			settle(eA)
			settle(eB)
		}
	}

	seqA, ok := eA.GetSeqNo(pa)
	require.True(t, ok)
	require.EqualValues(t, 5, seqA)

	seqB, ok := eB.GetSeqNo(pb)
	require.True(t, ok)
	require.EqualValues(t, 5, seqB)

	seqBOnA, ok := eA.GetSeqNo(pb)
	require.True(t, ok)
	require.EqualValues(t, 5, seqBOnA)

	seqAOnB, ok := eB.GetSeqNo(pa)
	require.True(t, ok)
	require.EqualValues(t, 5, seqAOnB)

	require.NotEmpty(t, updatesA)
	require.NotEmpty(t, updatesB)

	seenA := map[uint64]bool{}
	for _, u := range updatesA {
		if u.Prefix.Equal(pb) {
			seenA[u.HighSeq] = true
		}
	}
	for seq := uint64(1); seq <= 5; seq++ {
		require.True(t, seenA[seq], "A never observed pb@%d", seq)
	}

	seenB := map[uint64]bool{}
	for _, u := range updatesB {
		if u.Prefix.Equal(pa) {
			seenB[u.HighSeq] = true
		}
	}
	for seq := uint64(1); seq <= 5; seq++ {
		require.True(t, seenB[seq], "B never observed pa@%d", seq)
	}
}

// AddUserNode/RemoveUserNode/GetSeqNo against an unregistered prefix.
func TestEngineGetSeqNoUnknownPrefix(t *testing.T) {
	cfg := DefaultConfig()
	timer := basic.NewDummyTimer()
	hub := NewLoopbackHub()
	transport := NewLoopbackTransport(hub, timer)

	e := NewSyncEngine(cfg, transport, timer, nil, mustName(t, "/sync"), nil, nil)
	e.Start()
	defer e.Stop()

	_, known := e.GetSeqNo(mustName(t, "/never-registered"))
	require.False(t, known)

	pa := mustName(t, "/a")
	e.AddUserNode(pa)
	settle(e)
	seq, known := e.GetSeqNo(pa)
	require.True(t, known)
	require.Zero(t, seq)

	e.RemoveUserNode(pa)
	settle(e)
	_, known = e.GetSeqNo(pa)
	require.False(t, known)
}
