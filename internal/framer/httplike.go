package framer

import (
	"bytes"

	"github.com/ouyang506/gamenetcore/internal/buffer"
)

var crlfcrlf = []byte("\r\n\r\n")

const defaultMaxHTTPLikeMessage = 1 * 1024 * 1024 // 1 MiB

// HTTPLikeFramer frames messages as a text header block terminated by a
// blank line ("\r\n\r\n"), followed by a Content-Length-style body taken
// from a "Length: <n>\r\n" header line. It exists for the text-protocol
// corner of spec.md §4.6 ("HTTP-like text framing") distinct from the
// binary length-prefixed form; grounded on the same decouple-from-storage
// contract as LengthPrefixFramer, just with a human-readable header.
type HTTPLikeFramer struct {
	MaxMessage int
	scratch    []byte
}

func NewHTTPLike(maxMessage int) *HTTPLikeFramer {
	if maxMessage <= 0 {
		maxMessage = defaultMaxHTTPLikeMessage
	}
	return &HTTPLikeFramer{
		MaxMessage: maxMessage,
		scratch:    make([]byte, maxMessage),
	}
}

// parseLength scans a header block for a "Length: <n>\r\n" line. Absence of
// the header means a zero-length body (a bare header-only message).
func parseLength(header []byte) (int, bool) {
	const key = "Length:"
	lines := bytes.Split(header, []byte("\r\n"))
	for _, line := range lines {
		if bytes.HasPrefix(line, []byte(key)) {
			v := bytes.TrimSpace(line[len(key):])
			n := 0
			for _, ch := range v {
				if ch < '0' || ch > '9' {
					return 0, false
				}
				n = n*10 + int(ch-'0')
			}
			return n, true
		}
	}
	return 0, true
}

func (f *HTTPLikeFramer) OnReadable(recv *buffer.Buffer, sink Sink) (int, error) {
	dispatched := 0
	for {
		total := recv.UsedSize()
		if total == 0 {
			return dispatched, nil
		}
		window := total
		if window > len(f.scratch) {
			window = len(f.scratch)
		}
		buf := recv.ToContinuous(window, f.scratch)
		if buf == nil {
			return dispatched, ErrDecodeFailed
		}
		idx := bytes.Index(buf, crlfcrlf)
		if idx < 0 {
			if window >= f.MaxMessage {
				return dispatched, ErrOversize
			}
			return dispatched, nil // header not complete yet
		}
		headerLen := idx + len(crlfcrlf)
		bodyLen, ok := parseLength(buf[:idx])
		if !ok {
			return dispatched, ErrDecodeFailed
		}
		if headerLen+bodyLen > f.MaxMessage {
			return dispatched, ErrOversize
		}
		msgLen := headerLen + bodyLen
		if !recv.CheckUsedSize(msgLen) {
			return dispatched, nil // body still arriving
		}

		full := recv.ToContinuous(msgLen, f.scratch)
		if full == nil {
			return dispatched, ErrDecodeFailed
		}
		msg := make([]byte, bodyLen)
		copy(msg, full[headerLen:msgLen])
		recv.Remove(msgLen)

		sink(msg)
		dispatched++
	}
}

func (f *HTTPLikeFramer) Pack(send *buffer.Buffer, msg []byte) error {
	if len(msg) > f.MaxMessage {
		return ErrOversize
	}
	header := []byte("Length: ")
	header = appendInt(header, len(msg))
	header = append(header, '\r', '\n', '\r', '\n')

	send.Reserved(len(header) + len(msg))
	send.Append(header)
	send.Append(msg)
	return nil
}

func appendInt(dst []byte, n int) []byte {
	if n == 0 {
		return append(dst, '0')
	}
	start := len(dst)
	for n > 0 {
		dst = append(dst, byte('0'+n%10))
		n /= 10
	}
	// reverse the digits just appended
	end := len(dst) - 1
	for i, j := start, end; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	return dst
}
