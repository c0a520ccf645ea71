package storage

import (
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
)

func init() {
	graph.RegisterKind(graph.KindLayer, func(r *encoding.Reader) (graph.Object, error) {
		return DecodeLayer(r)
	})
}

// Layer wraps a Manifest digest as a first-class, composable filesystem
// delta.
type Layer struct {
	Manifest encoding.Digest
}

// Kind implements graph.Object.
func (l Layer) Kind() graph.Kind { return graph.KindLayer }

// ChildObjects implements graph.Object: a Layer's only child is its
// manifest.
func (l Layer) ChildObjects() []encoding.Digest {
	return []encoding.Digest{l.Manifest}
}

// Encode writes manifest_digest(32).
func (l Layer) Encode(w *encoding.Writer) error {
	return w.WriteDigest(l.Manifest)
}

// DecodeLayer reads a Layer previously written by Encode.
func DecodeLayer(r *encoding.Reader) (Layer, error) {
	d, err := r.ReadDigest()
	if err != nil {
		return Layer{}, err
	}
	return Layer{Manifest: d}, nil
}
