package engine

import (
	"fmt"

	"github.com/named-data/ndnd/std/engine/face"
	"github.com/named-data/ndnd/std/ndn"
)

// NewUnixFace constructs an NDN face using a Unix domain socket at the
// specified address for stream-based communication.
func NewUnixFace(addr string) ndn.Face {
	return face.NewStreamFace("unix", addr, true)
}

// NewTransportFace builds a Face from a transport URI scheme
// (unix://, tcp://, ws://), the same shape used in a daemon's config
// file to describe how it reaches its peers.
func NewTransportFace(scheme, target string, local bool) (ndn.Face, error) {
	switch scheme {
	case "unix":
		return face.NewStreamFace("unix", target, true), nil
	case "tcp", "tcp4", "tcp6":
		return face.NewStreamFace(scheme, target, local), nil
	case "ws", "wss":
		return face.NewWebSocketFace(scheme+"://"+target, local), nil
	}
	return nil, fmt.Errorf("unsupported transport scheme: %s", scheme)
}
