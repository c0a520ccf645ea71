package tracking

import (
	"path"
	"sort"
	"strings"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/spfserrors"
)

func init() {
	graph.RegisterKind(graph.KindManifest, func(r *encoding.Reader) (graph.Object, error) {
		return DecodeManifest(r)
	})
}

// Manifest is the complete tree-of-trees description of a directory
// snapshot: a root Tree plus every subtree it transitively references,
// keyed by digest.
type Manifest struct {
	root  *Tree
	trees map[encoding.Digest]*Tree
}

// NewManifest returns an empty manifest with an empty root tree.
func NewManifest() *Manifest {
	root := &Tree{entries: map[string]Entry{}}
	return &Manifest{root: root, trees: map[encoding.Digest]*Tree{}}
}

// Kind implements graph.Object.
func (m *Manifest) Kind() graph.Kind { return graph.KindManifest }

// ChildObjects implements graph.Object and returns nil: a Manifest carries
// every subtree inline, and the Blob records its file entries name are not
// reported as graph children.
func (m *Manifest) ChildObjects() []encoding.Digest { return nil }

// IsEmpty reports whether the manifest's root tree has no entries.
func (m *Manifest) IsEmpty() bool {
	return m.root.Len() == 0
}

// RootDigest returns the digest of the manifest's root tree.
func (m *Manifest) RootDigest() (encoding.Digest, error) {
	return m.root.Digest()
}

// GetPath resolves a slash-separated path to its Entry.
func (m *Manifest) GetPath(p string) (Entry, error) {
	p = path.Clean("/" + p)
	steps := strings.Split(strings.TrimPrefix(p, "/"), "/")
	tree := m.root
	var entry Entry
	var found bool
	for i, step := range steps {
		if tree == nil {
			break
		}
		e, ok := tree.Get(step)
		if !ok {
			break
		}
		entry, found = e, true
		if i == len(steps)-1 {
			break
		}
		if e.Kind != EntryKindTree {
			found = false
			break
		}
		tree = m.trees[e.Object]
		found = false
	}
	if !found {
		return Entry{}, spfserrors.UnknownReferenceError{Ref: p}
	}
	return entry, nil
}

// WalkEntry pairs an absolute path with its Entry, in manifest-walk order.
type WalkEntry struct {
	Path  string
	Entry Entry
}

// Walk returns every entry in the manifest, depth-first, in Tree sorted
// order, with slash-separated absolute paths rooted at "/".
func (m *Manifest) Walk() []WalkEntry {
	var out []WalkEntry
	var visit func(root string, tree *Tree)
	visit = func(root string, tree *Tree) {
		if tree == nil {
			return
		}
		for _, e := range tree.Sorted() {
			p := path.Join(root, e.Name)
			out = append(out, WalkEntry{Path: p, Entry: e})
			if e.Kind == EntryKindTree {
				visit(p, m.trees[e.Object])
			}
		}
	}
	visit("/", m.root)
	return out
}

// WalkAbs returns Walk's entries rooted at the given on-disk directory
// instead of "/".
func (m *Manifest) WalkAbs(root string) []WalkEntry {
	entries := m.Walk()
	out := make([]WalkEntry, len(entries))
	for i, we := range entries {
		out[i] = WalkEntry{Path: path.Join(root, strings.TrimPrefix(we.Path, "/")), Entry: we.Entry}
	}
	return out
}

// Encode writes the root tree followed by every subtree, ordered
// deterministically by digest, matching spec.md §6: "root Tree ‖ count(8)
// ‖ Tree* (subtrees)".
func (m *Manifest) Encode(w *encoding.Writer) error {
	if err := m.root.Encode(w); err != nil {
		return err
	}
	digests := make([]encoding.Digest, 0, len(m.trees))
	for d := range m.trees {
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool { return digests[i].String() < digests[j].String() })
	if err := w.WriteInt(uint64(len(digests))); err != nil {
		return err
	}
	for _, d := range digests {
		if err := m.trees[d].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeManifest reads a Manifest previously written by Encode.
func DecodeManifest(r *encoding.Reader) (*Manifest, error) {
	root, err := DecodeTree(r)
	if err != nil {
		return nil, err
	}
	count, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	m := &Manifest{root: root, trees: make(map[encoding.Digest]*Tree, count)}
	rootDigest, err := root.Digest()
	if err != nil {
		return nil, err
	}
	m.trees[rootDigest] = root
	for i := uint64(0); i < count; i++ {
		tree, err := DecodeTree(r)
		if err != nil {
			return nil, err
		}
		d, err := tree.Digest()
		if err != nil {
			return nil, err
		}
		m.trees[d] = tree
	}
	return m, nil
}
