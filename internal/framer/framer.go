// Package framer implements the Packet Framer (C7): components that
// convert a Socket's receive Buffer into discrete messages and serialize
// outgoing messages into its send Buffer. A Framer owns no storage of its
// own — see spec.md §4.6.
//
// Grounded on the teacher's codec chain (framework/network/codec.go's
// VariableFrameLenCodec and rpc/codec.go's InnerMessageCodec), generalized
// from a single fixed application protocol into pluggable Framer variants
// selectable per Socket, per spec.md §6's set_packet(conn_id, framer_kind).
package framer

import (
	"errors"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

// Sink receives one fully-decoded message. The byte slice is owned by the
// caller of Sink and safe to retain past the call.
type Sink func(msg []byte)

// Framer converts between a Socket's Buffers and discrete messages.
type Framer interface {
	// OnReadable consumes zero or more complete messages from recv,
	// invoking sink for each. It returns the count dispatched. A partial
	// message (or even a partial header) is left untouched and is not an
	// error — the framer simply returns until more bytes arrive.
	OnReadable(recv *buffer.Buffer, sink Sink) (int, error)

	// Pack serializes msg into send, reserving any per-message overhead
	// before writing.
	Pack(send *buffer.Buffer, msg []byte) error
}

// Sentinel errors the Socket translates into a drop-connection action
// (spec.md §4.6, §7 protocol_violation).
var (
	ErrShortHeader      = errors.New("framer: short or malformed header")
	ErrOversize         = errors.New("framer: message exceeds configured maximum")
	ErrChecksumMismatch = errors.New("framer: checksum mismatch")
	ErrDecodeFailed     = errors.New("framer: decode failed")
)
