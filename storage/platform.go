package storage

import (
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
)

func init() {
	graph.RegisterKind(graph.KindPlatform, func(r *encoding.Reader) (graph.Object, error) {
		return DecodePlatform(r)
	})
}

// Platform is an ordered stack of Layer (or nested Platform) digests,
// bottom to top, captured as a single identifiable object.
type Platform struct {
	Stack []encoding.Digest
}

// Kind implements graph.Object.
func (p Platform) Kind() graph.Kind { return graph.KindPlatform }

// ChildObjects implements graph.Object: every digest in the stack.
func (p Platform) ChildObjects() []encoding.Digest {
	return p.Stack
}

// Encode writes count(8) ‖ digest(32)*.
func (p Platform) Encode(w *encoding.Writer) error {
	if err := w.WriteInt(uint64(len(p.Stack))); err != nil {
		return err
	}
	for _, d := range p.Stack {
		if err := w.WriteDigest(d); err != nil {
			return err
		}
	}
	return nil
}

// DecodePlatform reads a Platform previously written by Encode.
func DecodePlatform(r *encoding.Reader) (Platform, error) {
	count, err := r.ReadInt()
	if err != nil {
		return Platform{}, err
	}
	stack := make([]encoding.Digest, 0, count)
	for i := uint64(0); i < count; i++ {
		d, err := r.ReadDigest()
		if err != nil {
			return Platform{}, err
		}
		stack = append(stack, d)
	}
	return Platform{Stack: stack}, nil
}
