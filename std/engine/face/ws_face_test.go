package face_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/engine/face"
	"github.com/stretchr/testify/require"
)

// WebSocketFace dials a real websocket server and exchanges binary TLV
// frames in both directions.
func TestWebSocketFaceRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	clientToServer := make(chan []byte, 1)
	serverToClient := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		clientToServer <- msg

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, <-serverToClient))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	f := face.NewWebSocketFace(url, true)

	received := make(chan []byte, 1)
	f.OnPacket(func(frame []byte) { received <- frame })
	f.OnError(func(error) {})
	require.NoError(t, f.Open())
	defer f.Close()

	require.NoError(t, f.Send(enc.Wire{enc.Buffer{0x05, 0x01, 0x2a}}))
	select {
	case msg := <-clientToServer:
		require.Equal(t, []byte{0x05, 0x01, 0x2a}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the client's frame")
	}

	serverToClient <- []byte{0x05, 0x03, 0x01, 0x02, 0x03}
	select {
	case frame := <-received:
		require.Equal(t, []byte{0x05, 0x03, 0x01, 0x02, 0x03}, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the server's frame")
	}
}
