package framer

import (
	"golang.org/x/crypto/blake2b"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

const checksumSize = 8 // truncated blake2b-256 digest

// ChecksumFramer wraps LengthPrefixFramer's wire shape with an 8-byte
// blake2b checksum trailer, giving the checksum_mismatch error spec.md
// §4.6 names a concrete implementation. No third-party hash library exists
// in the retrieval pack's main stack for this; golang.org/x/crypto/blake2b
// is the pack's own choice (evm_triarb's go.mod) for exactly this kind of
// fast non-cryptographic-strength integrity check.
type ChecksumFramer struct {
	inner   *LengthPrefixFramer
	scratch []byte
}

func NewChecksum(headerSize int, maxPayload int) *ChecksumFramer {
	inner := NewLengthPrefix(headerSize, maxPayload)
	return &ChecksumFramer{
		inner:   inner,
		scratch: make([]byte, inner.HeaderSize+inner.MaxPayload+checksumSize),
	}
}

func sum8(data []byte) [checksumSize]byte {
	full := blake2b.Sum256(data)
	var out [checksumSize]byte
	copy(out[:], full[:checksumSize])
	return out
}

func (f *ChecksumFramer) OnReadable(recv *buffer.Buffer, sink Sink) (int, error) {
	dispatched := 0
	for {
		if !recv.CheckUsedSize(f.inner.HeaderSize) {
			return dispatched, nil
		}
		hdr := recv.ToContinuous(f.inner.HeaderSize, f.scratch)
		if hdr == nil {
			return dispatched, ErrShortHeader
		}
		payloadLen := f.inner.readLength(hdr)
		if payloadLen < 0 || payloadLen > f.inner.MaxPayload {
			return dispatched, ErrOversize
		}
		total := f.inner.HeaderSize + payloadLen + checksumSize
		if !recv.CheckUsedSize(total) {
			return dispatched, nil
		}

		full := recv.ToContinuous(total, f.scratch)
		if full == nil {
			return dispatched, ErrDecodeFailed
		}
		payload := full[f.inner.HeaderSize : f.inner.HeaderSize+payloadLen]
		want := full[f.inner.HeaderSize+payloadLen : total]
		got := sum8(payload)
		if !equal8(got, want) {
			return dispatched, ErrChecksumMismatch
		}

		msg := make([]byte, payloadLen)
		copy(msg, payload)
		recv.Remove(total)

		sink(msg)
		dispatched++
	}
}

func equal8(a [checksumSize]byte, b []byte) bool {
	if len(b) != checksumSize {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *ChecksumFramer) Pack(send *buffer.Buffer, msg []byte) error {
	if len(msg) > f.inner.MaxPayload {
		return ErrOversize
	}
	send.Reserved(f.inner.HeaderSize + len(msg) + checksumSize)
	hdr := make([]byte, f.inner.HeaderSize)
	f.inner.writeLength(hdr, len(msg))
	send.Append(hdr)
	send.Append(msg)
	sum := sum8(msg)
	send.Append(sum[:])
	return nil
}
