package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/spfserrors"
)

// Database is a graph.Database persisted as sharded, digest-named files
// under root. It deliberately uses its own root directory rather than
// sharing one with a PayloadStorage: a Blob's digest equals its payload
// digest (see storage.Blob), so a shared digest-addressed directory would
// let a raw payload file and its encoded Blob record collide on the same
// path. Keeping the two stores separate sidesteps that collision entirely.
type Database struct {
	payloads *PayloadStorage
}

// NewDatabase returns a Database rooted at root.
func NewDatabase(root string) (*Database, error) {
	payloads, err := NewPayloadStorage(root)
	if err != nil {
		return nil, err
	}
	return &Database{payloads: payloads}, nil
}

// Root returns the database's root directory.
func (d *Database) Root() string {
	return d.payloads.Root()
}

// ReadObject decodes the object stored at digest.
func (d *Database) ReadObject(digest encoding.Digest) (graph.Object, error) {
	f, err := os.Open(d.payloads.digestPath(digest))
	if os.IsNotExist(err) {
		return nil, spfserrors.UnknownObjectError{Digest: digest.String()}
	}
	if err != nil {
		return nil, spfserrors.Io("open "+digest.String(), err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, spfserrors.Io("read "+digest.String(), err)
	}
	objectOps.WithValues("read").Inc(1)
	return graph.DecodeObject(encoding.NewReader(bytes.NewReader(raw)))
}

// HasObject reports whether digest identifies a stored object.
func (d *Database) HasObject(digest encoding.Digest) bool {
	return graph.HasObject(d, digest)
}

// WriteObject encodes obj and writes it to its digest path, via the same
// temp-then-rename protocol PayloadStorage uses. Writing an object whose
// digest already exists is a no-op (objects are immutable and
// content-addressed, so any existing file is byte-identical).
func (d *Database) WriteObject(obj graph.Object) error {
	digest, err := objectDigest(obj)
	if err != nil {
		return err
	}
	path := d.payloads.digestPath(digest)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := graph.EncodeObject(encoding.NewWriter(&buf), obj); err != nil {
		return err
	}

	if err := makedirsWithPerms(filepath.Dir(path), defaultDirPerm); err != nil {
		return err
	}
	working := filepath.Join(d.Root(), uuid.New().String())
	f, err := os.OpenFile(working, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return spfserrors.Io("create "+working, err)
	}
	_, writeErr := f.Write(buf.Bytes())
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(working)
		return spfserrors.Io("write "+working, writeErr)
	}
	if closeErr != nil {
		os.Remove(working)
		return spfserrors.Io("close "+working, closeErr)
	}
	if err := os.Rename(working, path); err != nil {
		os.Remove(working)
		return spfserrors.Io("rename "+working, err)
	}
	objectOps.WithValues("write").Inc(1)
	return os.Chmod(path, defaultFilePerm)
}

// RemoveObject deletes the object stored at digest.
func (d *Database) RemoveObject(digest encoding.Digest) error {
	err := os.Remove(d.payloads.digestPath(digest))
	if os.IsNotExist(err) {
		return spfserrors.UnknownObjectError{Digest: digest.String()}
	}
	if err != nil {
		return spfserrors.Io("remove "+digest.String(), err)
	}
	objectOps.WithValues("remove").Inc(1)
	return nil
}

// IterDigests lists the digest of every stored object.
func (d *Database) IterDigests() ([]encoding.Digest, error) {
	return d.payloads.IterDigests(context.Background())
}

// IterObjects decodes and returns every stored object.
func (d *Database) IterObjects() ([]graph.Object, error) {
	digests, err := d.IterDigests()
	if err != nil {
		return nil, err
	}
	objs := make([]graph.Object, 0, len(digests))
	for _, digest := range digests {
		obj, err := d.ReadObject(digest)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// WalkObjects performs a breadth-first traversal from root.
func (d *Database) WalkObjects(root encoding.Digest) ([]graph.Object, error) {
	return graph.WalkObjects(d, root)
}

// ResolveFullDigest expands a short digest prefix against this database's
// stored objects.
func (d *Database) ResolveFullDigest(prefix string) (encoding.Digest, error) {
	return d.payloads.ResolveFullDigest(context.Background(), prefix)
}

func objectDigest(obj graph.Object) (encoding.Digest, error) {
	if b, ok := obj.(interface{ Digest() encoding.Digest }); ok {
		return b.Digest(), nil
	}
	return graph.DigestOfObject(obj)
}
