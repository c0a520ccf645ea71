package tracking

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
)

// IsRemovedEntryFunc is the host-collaborator predicate used to recognize
// an overlayfs whiteout file. It is a variable, not a constant function,
// so callers on platforms without a usable convention can override it.
var IsRemovedEntryFunc = isRemovedEntry

// ComputeManifest walks the directory rooted at root in sorted-name order
// and produces a Manifest. Symlinks become blob entries hashed over their
// target, directories become trees, whiteouts (per IsRemovedEntryFunc)
// become masks, regular files become blob entries hashed over their
// content, and any other file kind fails with UnsupportedFileKindError.
func ComputeManifest(root string) (*Manifest, error) {
	builder := NewManifestBuilder(root)
	if _, err := computeEntry(root, builder); err != nil {
		return nil, err
	}
	return builder.Finalize()
}

func computeTree(dirname string, b *ManifestBuilder) (*Tree, error) {
	abs, err := filepath.Abs(dirname)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, spfserrors.Io("readdir "+abs, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)

	var children []Entry
	for _, name := range names {
		e, err := computeEntry(filepath.Join(abs, name), b)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return NewTree(children...)
}

func computeEntry(p string, b *ManifestBuilder) (Entry, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return Entry{}, spfserrors.Io("abs", err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return Entry{}, spfserrors.Io("lstat "+abs, err)
	}

	var kind EntryKind
	var digest encoding.Digest
	size := uint64(info.Size())

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		kind = EntryKindBlob
		target, err := os.Readlink(abs)
		if err != nil {
			return Entry{}, spfserrors.Io("readlink "+abs, err)
		}
		digest = encoding.NewHasher([]byte(target)).Digest()
		size = uint64(len(target))
	case info.IsDir():
		kind = EntryKindTree
		subtree, err := computeTree(abs, b)
		if err != nil {
			return Entry{}, err
		}
		digest, err = subtree.Digest()
		if err != nil {
			return Entry{}, err
		}
	case IsRemovedEntryFunc(info):
		kind = EntryKindMask
		digest = encoding.EmptyDigest
		size = 0
	case info.Mode().IsRegular():
		kind = EntryKindBlob
		digest, err = hashFile(abs)
		if err != nil {
			return Entry{}, err
		}
	default:
		return Entry{}, spfserrors.UnsupportedFileKindError{Path: abs, Kind: info.Mode().String()}
	}

	entry := Entry{
		Kind:   kind,
		Name:   filepath.Base(abs),
		Mode:   uint32(info.Mode()),
		Size:   size,
		Object: digest,
	}

	if err := b.AddEntry(abs, entry); err != nil {
		if err := b.UpdateEntry(abs, entry); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

func hashFile(path string) (encoding.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("open "+path, err)
	}
	defer f.Close()

	hasher := encoding.NewHasher(nil)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return hasher.Digest(), nil
}
