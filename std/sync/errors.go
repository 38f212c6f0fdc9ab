package sync

import (
	"errors"
	"fmt"

	enc "github.com/named-data/ndnd/std/encoding"
)

// ErrUnknownPrefix is returned by PublishName/PublishNameAndData (and
// PrefixRegistry.Advance) when called on a prefix that was never
// registered with AddUserNode. It never crosses the engine boundary
// as a panic: callers log it and no-op.
var ErrUnknownPrefix = errors.New("prefix is not registered")

// ErrMalformedIBLTComponent means a peer request's IBLT name component
// failed to deserialize. The request is dropped; no reply is sent.
var ErrMalformedIBLTComponent = errors.New("iblt component is malformed")

// ErrTransportNack means an outbound digest request was nacked by the
// transport. The engine reschedules after jitter.
var ErrTransportNack = errors.New("outbound request was nacked")

// ErrMalformedState wraps a State decode failure with the reply name
// that produced it.
type ErrMalformedState struct {
	// From is the reply name whose payload failed to decode.
	From enc.Name
	// Err is the underlying TLV grammar violation.
	Err error
}

// Error returns a formatted message identifying the offending reply name and underlying cause.
func (e *ErrMalformedState) Error() string {
	return fmt.Sprintf("malformed state reply from %s: %v", e.From, e.Err)
}

// Unwrap returns the underlying error that caused the decode failure.
func (e *ErrMalformedState) Unwrap() error {
	return e.Err
}
