package encoding

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/spfs-io/spfs/spfserrors"
)

// IntSize is the fixed width, in bytes, of every encoded integer.
const IntSize = 8

// Writer wraps an io.Writer with the spfs binary encoding primitives.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes a fixed magic value followed by a newline.
func (w *Writer) WriteHeader(magic []byte) error {
	if _, err := w.w.Write(magic); err != nil {
		return spfserrors.Io("write header", err)
	}
	if _, err := w.w.Write([]byte{'\n'}); err != nil {
		return spfserrors.Io("write header", err)
	}
	return nil
}

// WriteInt writes a big-endian fixed-width 8-byte unsigned integer.
func (w *Writer) WriteInt(v uint64) error {
	var buf [IntSize]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if _, err := w.w.Write(buf[:]); err != nil {
		return spfserrors.Io("write int", err)
	}
	return nil
}

// WriteString writes s as raw UTF-8 bytes terminated by a NUL byte.
// Strings containing a NUL character are rejected.
func (w *Writer) WriteString(s string) error {
	if strings.ContainsRune(s, 0) {
		return spfserrors.CorruptObjectError{Reason: "cannot encode string containing NUL"}
	}
	if _, err := io.WriteString(w.w, s); err != nil {
		return spfserrors.Io("write string", err)
	}
	if _, err := w.w.Write([]byte{0}); err != nil {
		return spfserrors.Io("write string", err)
	}
	return nil
}

// WriteDigest writes exactly DigestSize bytes.
func (w *Writer) WriteDigest(d Digest) error {
	if _, err := w.w.Write(d[:]); err != nil {
		return spfserrors.Io("write digest", err)
	}
	return nil
}

// Reader wraps a buffered reader with the spfs binary decoding primitives.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for decoding.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// ConsumeHeader reads and validates the given header (without its trailing
// newline) from the stream.
func (r *Reader) ConsumeHeader(magic []byte) error {
	buf := make([]byte, len(magic)+1)
	n, err := io.ReadFull(r.r, buf)
	if err != nil {
		if n < len(buf) {
			return spfserrors.UnexpectedEOFError{Reason: "short header"}
		}
		return spfserrors.Io("read header", err)
	}
	if !equalBytes(buf[:len(magic)], magic) || buf[len(magic)] != '\n' {
		return spfserrors.CorruptObjectError{Reason: "invalid header"}
	}
	return nil
}

// ReadInt reads a big-endian fixed-width 8-byte unsigned integer.
func (r *Reader) ReadInt() (uint64, error) {
	var buf [IntSize]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, spfserrors.UnexpectedEOFError{Reason: "not enough bytes for int"}
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadDigest reads exactly DigestSize bytes.
func (r *Reader) ReadDigest() (Digest, error) {
	var d Digest
	if _, err := io.ReadFull(r.r, d[:]); err != nil {
		return d, spfserrors.UnexpectedEOFError{Reason: "not enough bytes for digest"}
	}
	return d, nil
}

// ReadString reads a UTF-8 string terminated by a NUL byte.
func (r *Reader) ReadString() (string, error) {
	s, err := r.r.ReadString(0)
	if err != nil {
		return "", spfserrors.UnexpectedEOFError{Reason: "eof reached before termination of string"}
	}
	return s[:len(s)-1], nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
