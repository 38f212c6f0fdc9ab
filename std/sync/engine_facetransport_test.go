package sync

import (
	"testing"
	"time"

	"github.com/named-data/ndnd/std/engine/basic"
	"github.com/named-data/ndnd/std/engine/face"
	"github.com/stretchr/testify/require"
)

// pumpDummyFace ferries every packet from's Send buffers into to's
// FeedPacket, standing in for the real wire a FaceTransport normally
// runs over. It stops as soon as stop is closed.
func pumpDummyFace(stop <-chan struct{}, from, to *face.DummyFace) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		buf, err := from.Consume()
		if err != nil {
			continue
		}
		if err := to.FeedPacket(buf); err != nil {
			return
		}
	}
}

// Two-peer convergence again, but over FaceTransport/DummyFace instead
// of LoopbackTransport:
// two engines converge when their requests and replies actually travel
// as framed bytes across a face, not through the in-process hub.
func TestEngineTwoPeerConvergenceOverFaceTransport(t *testing.T) {
	faceA := face.NewDummyFace()
	faceB := face.NewDummyFace()
	timer := basic.NewDummyTimer()

	tA := NewFaceTransport(faceA, timer)
	tB := NewFaceTransport(faceB, timer)

	require.NoError(t, faceA.Open())
	require.NoError(t, faceB.Open())

	stop := make(chan struct{})
	go pumpDummyFace(stop, faceA, faceB)
	go pumpDummyFace(stop, faceB, faceA)
	defer close(stop)

	root := mustName(t, "/sync")
	pa := mustName(t, "/a")
	pb := mustName(t, "/b")

	eA := NewSyncEngine(DefaultConfig(), tA, timer, nil, root, pa, nil)
	eB := NewSyncEngine(DefaultConfig(), tB, timer, nil, root, pb, nil)

	eA.Start()
	eB.Start()
	defer eA.Stop()
	defer eB.Stop()
	defer faceA.Close()
	defer faceB.Close()

	s := uint64(1)
	require.NoError(t, eA.PublishName(pa, &s))
	require.NoError(t, eB.PublishName(pb, &s))

	require.Eventually(t, func() bool {
		seq, ok := eA.GetSeqNo(pb)
		return ok && seq == 1
	}, 10*time.Second, 20*time.Millisecond, "A never learned pb@1 over FaceTransport")

	require.Eventually(t, func() bool {
		seq, ok := eB.GetSeqNo(pa)
		return ok && seq == 1
	}, 10*time.Second, 20*time.Millisecond, "B never learned pa@1 over FaceTransport")
}
