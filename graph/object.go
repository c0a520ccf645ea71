// Package graph defines the object trait shared by every stored spfs
// entity (Blob, Manifest, Layer, Platform) and the database abstraction
// that stores, retrieves, and walks them.
package graph

import (
	"github.com/spfs-io/spfs/encoding"
)

// Kind identifies the on-disk object kind tag.
type Kind uint64

// Object kinds, matching the 8-byte kind tag written after every object's
// header.
const (
	KindBlob Kind = iota
	KindManifest
	KindLayer
	KindPlatform
)

// Object is the base type for all storable graph entities. Objects are
// identified by the digest of their encoded form and may reference any
// number of immediate children in the graph.
type Object interface {
	encoding.Encodable
	Kind() Kind
	ChildObjects() []encoding.Digest
}

// DecodeFunc decodes an object body (the portion of the stream following
// the header and kind tag) for one registered Kind.
type DecodeFunc func(r *encoding.Reader) (Object, error)

var decoders = map[Kind]DecodeFunc{}

// RegisterKind registers the decoder used for objects of kind k. Entity
// packages call this from an init function.
func RegisterKind(k Kind, fn DecodeFunc) {
	decoders[k] = fn
}
