// Package storage defines the capability interfaces (PayloadStorage,
// TagStorage, ManifestViewer, Repository) and the graph entity types
// (Blob, Layer, Platform) that back them. Concrete backends implement
// these interfaces independently; see storage/fs and storage/s3.
package storage

import (
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
)

func init() {
	graph.RegisterKind(graph.KindBlob, func(r *encoding.Reader) (graph.Object, error) {
		return DecodeBlob(r)
	})
}

// Blob is a content-addressed unit of raw file bytes. Unlike every other
// graph.Object, Blob.Digest() equals its Payload field directly rather
// than the hash of its own encoded form — spec.md §3 defines Blob identity
// as the content it wraps, so a Blob can always be found from the payload
// digest alone.
type Blob struct {
	Payload encoding.Digest
	Size    uint64
}

// Digest returns the blob's payload digest.
func (b Blob) Digest() encoding.Digest { return b.Payload }

// Kind implements graph.Object.
func (b Blob) Kind() graph.Kind { return graph.KindBlob }

// ChildObjects implements graph.Object. A Blob has no children: its
// payload lives in the payload store, not the object database.
func (b Blob) ChildObjects() []encoding.Digest { return nil }

// Encode writes payload(32) ‖ size(8).
func (b Blob) Encode(w *encoding.Writer) error {
	if err := w.WriteDigest(b.Payload); err != nil {
		return err
	}
	return w.WriteInt(b.Size)
}

// DecodeBlob reads a Blob previously written by Encode.
func DecodeBlob(r *encoding.Reader) (Blob, error) {
	payload, err := r.ReadDigest()
	if err != nil {
		return Blob{}, err
	}
	size, err := r.ReadInt()
	if err != nil {
		return Blob{}, err
	}
	return Blob{Payload: payload, Size: size}, nil
}
