package engine

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/stretchr/testify/require"
)

// NewTransportFace("unix", ...) builds a real StreamFace over a Unix
// domain socket and round-trips TLV frames in both directions.
func TestNewTransportFaceUnixRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ndnd-test.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	f, err := NewTransportFace("unix", sockPath, true)
	require.NoError(t, err)

	received := make(chan []byte, 1)
	f.OnPacket(func(frame []byte) { received <- frame })
	f.OnError(func(error) {})
	require.NoError(t, f.Open())
	defer f.Close()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the unix connection")
	}
	defer conn.Close()

	_, err = conn.Write([]byte{0x05, 0x03, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	select {
	case frame := <-received:
		require.Equal(t, []byte{0x05, 0x03, 0x01, 0x02, 0x03}, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the server's frame")
	}

	require.NoError(t, f.Send(enc.Wire{enc.Buffer{0x05, 0x01, 0x2a}}))
	buf := make([]byte, 3)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x01, 0x2a}, buf)
}

// Unsupported scheme is rejected rather than silently ignored.
func TestNewTransportFaceUnsupportedScheme(t *testing.T) {
	_, err := NewTransportFace("quic", "127.0.0.1:0", false)
	require.Error(t, err)
}

// NewUnixFace is the fixed-scheme convenience wrapper over the same path.
func TestNewUnixFace(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ndnd-test2.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	f := NewUnixFace(sockPath)
	f.OnPacket(func([]byte) {})
	f.OnError(func(error) {})
	require.NoError(t, f.Open())
	f.Close()
}
