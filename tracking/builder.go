package tracking

import (
	"errors"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestBuilder incrementally assembles a Manifest while a directory
// tree is walked, tracking in-progress subtrees by their slash-separated
// internal path before Finalize computes each subtree's digest bottom-up.
type ManifestBuilder struct {
	root        string
	treeEntries map[string]Entry
	trees       map[string]*Tree
}

// NewManifestBuilder returns a builder rooted at root (an absolute
// filesystem path all subsequent Add/Update/Remove calls must fall under).
func NewManifestBuilder(root string) *ManifestBuilder {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	b := &ManifestBuilder{
		root:        abs,
		treeEntries: map[string]Entry{},
		trees:       map[string]*Tree{},
	}
	b.makedirs("/")
	return b
}

func (b *ManifestBuilder) internalPath(p string) string {
	rel := strings.TrimPrefix(p, b.root)
	return path.Clean("/" + filepath.ToSlash(rel))
}

func (b *ManifestBuilder) makedirs(p string) {
	if _, ok := b.trees[p]; ok {
		return
	}
	name := path.Base(p)
	entry := Entry{Kind: EntryKindTree, Mode: 0o775, Name: name}
	_ = b.AddEntry(p, entry) // tolerate already-exists
}

// AddEntry inserts entry at p, creating any missing ancestor tree entries
// along the way. It fails if an entry of that name already exists in the
// parent tree.
func (b *ManifestBuilder) AddEntry(p string, entry Entry) error {
	p = b.internalPath(p)
	if entry.Kind == EntryKindTree {
		b.treeEntries[p] = entry
		if _, ok := b.trees[p]; !ok {
			b.trees[p] = &Tree{entries: map[string]Entry{}}
		}
	}
	if p == "/" {
		return nil
	}
	dirname := path.Dir(p)
	b.makedirs(dirname)
	return b.trees[dirname].Add(entry)
}

// UpdateEntry replaces the entry at p. For directories only the entry's
// mode bits are meaningful (and the directory must already exist); for
// everything else this removes then re-adds.
func (b *ManifestBuilder) UpdateEntry(p string, entry Entry) error {
	p = b.internalPath(p)
	if entry.Kind == EntryKindTree {
		if _, ok := b.treeEntries[p]; !ok {
			return errors.New("tracking: not found: " + p)
		}
		b.treeEntries[p] = entry
		return nil
	}
	b.RemoveEntry(p)
	return b.AddEntry(p, entry)
}

// RemoveEntry removes the entry at p and, if it was a directory,
// recursively discards every tracked descendant subtree. Removing a path
// that is not present is not an error.
func (b *ManifestBuilder) RemoveEntry(p string) {
	p = b.internalPath(p)
	if p == "/" {
		b.trees = map[string]*Tree{}
		b.treeEntries = map[string]Entry{}
		b.makedirs("/")
		return
	}
	dirname := path.Dir(p)
	basename := path.Base(p)
	if t, ok := b.trees[dirname]; ok {
		_ = t.Remove(basename)
	}
	prefix := p + "/"
	for k := range b.treeEntries {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(b.treeEntries, k)
			delete(b.trees, k)
		}
	}
}

// Finalize computes every subtree's digest bottom-up and returns the
// assembled Manifest.
func (b *ManifestBuilder) Finalize() (*Manifest, error) {
	paths := make([]string, 0, len(b.trees))
	for p := range b.trees {
		paths = append(paths, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	m := NewManifest()
	var rootTree *Tree
	for _, p := range paths {
		tree := b.trees[p]
		if p == "/" {
			rootTree = tree
			d, err := tree.Digest()
			if err != nil {
				return nil, err
			}
			m.trees[d] = tree
			break
		}
		parentPath := path.Dir(p)
		parent, ok := b.trees[parentPath]
		if !ok {
			continue
		}
		treeEntry := b.treeEntries[p]
		digest, err := tree.Digest()
		if err != nil {
			return nil, err
		}
		treeEntry.Object = digest
		parent.Update(treeEntry)
		m.trees[digest] = tree
	}
	if rootTree == nil {
		return nil, errors.New("tracking: logic error: root tree was never visited")
	}
	m.root = rootTree
	return m, nil
}
