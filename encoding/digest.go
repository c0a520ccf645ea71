// Package encoding provides the deterministic binary framing and digest
// machinery shared by every stored spfs object: fixed-width integers,
// NUL-terminated strings, fixed-size digests, and typed object headers.
package encoding

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"hash"

	"github.com/spfs-io/spfs/spfserrors"
)

// DigestSize is the fixed length, in bytes, of every Digest.
const DigestSize = sha256.Size

// Digest is a fixed-length cryptographic hash identifying an Encodable
// object or a raw payload.
type Digest [DigestSize]byte

// NullDigest is the all-zero digest, used to mark the absence of a parent
// or target.
var NullDigest Digest

// EmptyDigest is the digest of the empty byte string.
var EmptyDigest = Digest(sha256.Sum256(nil))

var b32Encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// String returns the canonical base32 form of the digest.
func (d Digest) String() string {
	return b32Encoding.EncodeToString(d[:])
}

// IsNull reports whether d is the all-zero digest.
func (d Digest) IsNull() bool {
	return d == NullDigest
}

// Bytes returns the raw bytes of the digest.
func (d Digest) Bytes() []byte {
	return d[:]
}

// ParseDigest parses the canonical base32 string form of a digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := b32Encoding.DecodeString(s)
	if err != nil {
		return d, spfserrors.InvalidDigestError{Value: s, Reason: err.Error()}
	}
	if len(raw) != DigestSize {
		return d, spfserrors.InvalidDigestError{Value: s, Reason: "wrong length"}
	}
	copy(d[:], raw)
	return d, nil
}

// DigestFromBytes copies b into a Digest, failing if the length is wrong.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, spfserrors.InvalidDigestError{Reason: "wrong length"}
	}
	copy(d[:], b)
	return d, nil
}

// Hasher is the single hashing algorithm used for digest generation across
// all spfs storage implementations.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a Hasher seeded with the given initial data.
func NewHasher(data []byte) *Hasher {
	h := sha256.New()
	if len(data) > 0 {
		h.Write(data)
	}
	return &Hasher{h: h}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Digest returns the current digest computed by this hasher.
func (h *Hasher) Digest() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// Encodable is a type that can be binary-encoded to a byte stream and
// addressed by the digest of its encoded form.
type Encodable interface {
	Encode(w *Writer) error
}

// DigestOf computes the digest of an Encodable by encoding it into memory
// and hashing the full encoded form, including header and kind tag.
func DigestOf(e Encodable) (Digest, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := e.Encode(w); err != nil {
		return Digest{}, err
	}
	hasher := NewHasher(buf.Bytes())
	return hasher.Digest(), nil
}
