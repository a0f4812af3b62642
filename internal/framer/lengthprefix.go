package framer

import (
	"encoding/binary"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

const defaultMaxPayload = 2 * 1024 * 1024 // 2 MiB, matches the teacher's MaxFrameLength

// LengthPrefixFramer frames messages as a fixed-width big-endian length
// prefix followed by that many payload bytes. HeaderSize is 2 or 4 (u16 or
// u32 BE); scenario 1-3 of spec.md §8 use the 2-byte form.
type LengthPrefixFramer struct {
	HeaderSize int
	MaxPayload int

	scratch []byte
}

// NewLengthPrefix returns a framer with a headerSize-byte (2 or 4) BE
// length prefix and the given max payload size (0 selects the default).
func NewLengthPrefix(headerSize int, maxPayload int) *LengthPrefixFramer {
	if headerSize != 2 && headerSize != 4 {
		headerSize = 2
	}
	if maxPayload <= 0 {
		maxPayload = defaultMaxPayload
	}
	return &LengthPrefixFramer{
		HeaderSize: headerSize,
		MaxPayload: maxPayload,
		scratch:    make([]byte, headerSize+maxPayload),
	}
}

func (f *LengthPrefixFramer) readLength(hdr []byte) int {
	if f.HeaderSize == 4 {
		return int(binary.BigEndian.Uint32(hdr))
	}
	return int(binary.BigEndian.Uint16(hdr))
}

func (f *LengthPrefixFramer) writeLength(hdr []byte, n int) {
	if f.HeaderSize == 4 {
		binary.BigEndian.PutUint32(hdr, uint32(n))
	} else {
		binary.BigEndian.PutUint16(hdr, uint16(n))
	}
}

func (f *LengthPrefixFramer) OnReadable(recv *buffer.Buffer, sink Sink) (int, error) {
	dispatched := 0
	for {
		if !recv.CheckUsedSize(f.HeaderSize) {
			return dispatched, nil // partial header: wait for more bytes
		}
		hdr := recv.ToContinuous(f.HeaderSize, f.scratch)
		if hdr == nil {
			return dispatched, ErrShortHeader
		}
		payloadLen := f.readLength(hdr)
		if payloadLen < 0 || payloadLen > f.MaxPayload {
			return dispatched, ErrOversize
		}
		total := f.HeaderSize + payloadLen
		if !recv.CheckUsedSize(total) {
			return dispatched, nil // partial body: wait for more bytes
		}

		full := recv.ToContinuous(total, f.scratch)
		if full == nil {
			return dispatched, ErrDecodeFailed
		}
		msg := make([]byte, payloadLen)
		copy(msg, full[f.HeaderSize:total])
		recv.Remove(total)

		sink(msg)
		dispatched++
	}
}

func (f *LengthPrefixFramer) Pack(send *buffer.Buffer, msg []byte) error {
	if len(msg) > f.MaxPayload {
		return ErrOversize
	}
	send.Reserved(f.HeaderSize + len(msg))
	hdr := make([]byte, f.HeaderSize)
	f.writeLength(hdr, len(msg))
	send.Append(hdr)
	send.Append(msg)
	return nil
}
