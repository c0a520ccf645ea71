package tracking

import (
	"sort"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
)

// Tree is an ordered collection of uniquely-named entries.
type Tree struct {
	entries map[string]Entry
}

// NewTree builds a Tree from the given entries, which must have distinct
// names.
func NewTree(entries ...Entry) (*Tree, error) {
	t := &Tree{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := t.Add(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add inserts an entry, failing if one with the same name already exists.
func (t *Tree) Add(e Entry) error {
	if t.entries == nil {
		t.entries = map[string]Entry{}
	}
	if _, exists := t.entries[e.Name]; exists {
		return spfserrors.CorruptObjectError{Reason: "entry already exists: " + e.Name}
	}
	t.entries[e.Name] = e
	return nil
}

// Update replaces any existing entry of the same name.
func (t *Tree) Update(e Entry) {
	if t.entries == nil {
		t.entries = map[string]Entry{}
	}
	t.entries[e.Name] = e
}

// Remove deletes the entry with the given name, failing if absent.
func (t *Tree) Remove(name string) error {
	if _, ok := t.entries[name]; !ok {
		return spfserrors.UnknownReferenceError{Ref: name}
	}
	delete(t.entries, name)
	return nil
}

// Get returns the entry with the given name, if present.
func (t *Tree) Get(name string) (Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Len returns the number of entries in the tree.
func (t *Tree) Len() int {
	return len(t.entries)
}

// Sorted returns the tree's entries ordered per spec.md §3: directories
// first, then lexicographically by name.
func (t *Tree) Sorted() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// Digest returns the hash of the tree's plain encoded form (no object
// header), used to key subtrees and to populate a parent Entry's Object
// field for directories.
func (t *Tree) Digest() (encoding.Digest, error) {
	return encoding.DigestOf(t)
}

// Encode writes count(8) followed by each entry in sorted order.
func (t *Tree) Encode(w *encoding.Writer) error {
	sorted := t.Sorted()
	if err := w.WriteInt(uint64(len(sorted))); err != nil {
		return err
	}
	for _, e := range sorted {
		if err := e.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTree reads a Tree previously written by Encode.
func DecodeTree(r *encoding.Reader) (*Tree, error) {
	count, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	t := &Tree{entries: make(map[string]Entry, count)}
	for i := uint64(0); i < count; i++ {
		e, err := DecodeEntry(r)
		if err != nil {
			return nil, err
		}
		if err := t.Add(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}
