// Package tracking implements the in-memory Manifest/Tree/Entry model: how
// a directory tree is computed into a Manifest, how two Manifests diff, and
// how a stack of layer Manifests merges with mask removal.
package tracking

import (
	"fmt"
	"io/fs"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
)

// EntryKind distinguishes the three kinds of Tree children.
type EntryKind string

// Entry kinds, matching the wire-format kind strings.
const (
	EntryKindTree EntryKind = "tree"
	EntryKindBlob EntryKind = "file"
	EntryKindMask EntryKind = "mask"
)

// Entry is one child of a Tree: a file, a subdirectory, or a tombstone
// marking the removal of a path contributed by a lower layer.
type Entry struct {
	Object encoding.Digest
	Kind   EntryKind
	Mode   uint32
	Size   uint64
	Name   string
}

// IsSymlink reports whether the entry's mode bits mark it as a symlink.
func (e Entry) IsSymlink() bool {
	return fs.FileMode(e.Mode)&fs.ModeSymlink != 0
}

func (e Entry) String() string {
	return fmt.Sprintf("%06o %s %s %s", e.Mode, e.Kind, e.Name, e.Object)
}

// less orders entries the way spec.md §3 requires: directories before
// files/masks, then lexicographically by name.
func (e Entry) less(other Entry) bool {
	if e.Kind == other.Kind {
		return e.Name < other.Name
	}
	if e.Kind == EntryKindTree {
		return true
	}
	if other.Kind == EntryKindTree {
		return false
	}
	return e.Name < other.Name
}

// Encode writes the entry in the spec.md §6 wire order: digest, kind
// string, mode, size, name.
func (e Entry) Encode(w *encoding.Writer) error {
	if err := w.WriteDigest(e.Object); err != nil {
		return err
	}
	if err := w.WriteString(string(e.Kind)); err != nil {
		return err
	}
	if err := w.WriteInt(uint64(e.Mode)); err != nil {
		return err
	}
	if err := w.WriteInt(e.Size); err != nil {
		return err
	}
	return w.WriteString(e.Name)
}

// DecodeEntry reads an Entry previously written by Encode.
func DecodeEntry(r *encoding.Reader) (Entry, error) {
	var e Entry
	digest, err := r.ReadDigest()
	if err != nil {
		return e, err
	}
	kindStr, err := r.ReadString()
	if err != nil {
		return e, err
	}
	switch EntryKind(kindStr) {
	case EntryKindTree, EntryKindBlob, EntryKindMask:
	default:
		return e, spfserrors.CorruptObjectError{Reason: "unknown entry kind " + kindStr}
	}
	mode, err := r.ReadInt()
	if err != nil {
		return e, err
	}
	size, err := r.ReadInt()
	if err != nil {
		return e, err
	}
	name, err := r.ReadString()
	if err != nil {
		return e, err
	}
	return Entry{
		Object: digest,
		Kind:   EntryKind(kindStr),
		Mode:   uint32(mode),
		Size:   size,
		Name:   name,
	}, nil
}
