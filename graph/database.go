package graph

import (
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
)

// Header is the fixed magic written at the start of every encoded object.
var Header = []byte("--SPFS--")

// EncodeObject writes an object's full on-disk form: header, kind tag, and
// body.
func EncodeObject(w *encoding.Writer, obj Object) error {
	if err := w.WriteHeader(Header); err != nil {
		return err
	}
	if err := w.WriteInt(uint64(obj.Kind())); err != nil {
		return err
	}
	return obj.Encode(w)
}

// DigestOfObject computes the content digest of a full encoded object
// (header, kind tag, and body included).
func DigestOfObject(obj Object) (encoding.Digest, error) {
	return encoding.DigestOf(encodableObject{obj})
}

type encodableObject struct {
	obj Object
}

func (e encodableObject) Encode(w *encoding.Writer) error {
	return EncodeObject(w, e.obj)
}

// DecodeObject reads an object's header, kind tag, and body, dispatching to
// the decoder registered for the kind tag found on the stream.
func DecodeObject(r *encoding.Reader) (Object, error) {
	if err := r.ConsumeHeader(Header); err != nil {
		return nil, err
	}
	kindVal, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	fn, ok := decoders[Kind(kindVal)]
	if !ok {
		return nil, spfserrors.CorruptObjectError{Reason: "unknown object kind"}
	}
	return fn(r)
}

// DatabaseView is a read-only object database.
type DatabaseView interface {
	ReadObject(digest encoding.Digest) (Object, error)
	HasObject(digest encoding.Digest) bool
	IterDigests() ([]encoding.Digest, error)
	IterObjects() ([]Object, error)
	WalkObjects(root encoding.Digest) ([]Object, error)
	// ResolveFullDigest expands a short digest prefix against the objects
	// known to this database, mirroring PayloadStorage.ResolveFullDigest.
	ResolveFullDigest(prefix string) (encoding.Digest, error)
}

// Database additionally supports writing and removing objects.
type Database interface {
	DatabaseView
	WriteObject(obj Object) error
	RemoveObject(digest encoding.Digest) error
}

// HasObject is a helper that backends can embed to derive HasObject from
// ReadObject.
func HasObject(view DatabaseView, digest encoding.Digest) bool {
	_, err := view.ReadObject(digest)
	return err == nil
}

// WalkObjects performs a breadth-first traversal starting at root,
// visiting each reachable object exactly once (deduplicated by digest).
// root itself is yielded first.
func WalkObjects(view DatabaseView, root encoding.Digest) ([]Object, error) {
	seen := map[encoding.Digest]bool{}
	var order []Object

	queue := []encoding.Digest{root}
	seen[root] = true
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		obj, err := view.ReadObject(d)
		if err != nil {
			return nil, err
		}
		order = append(order, obj)

		for _, child := range obj.ChildObjects() {
			if seen[child] {
				continue
			}
			seen[child] = true
			queue = append(queue, child)
		}
	}
	return order, nil
}
