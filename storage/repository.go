package storage

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/logging"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/tracking"
)

// Repository is a storage location capable of holding every kind of spfs
// data: tagged references, the object graph, raw payloads, and (optionally)
// rendered manifests. Concrete backends (storage/fs, storage/s3) assemble
// one of these from their own Tags/Objects/Payloads/Renderer implementations.
type Repository struct {
	Tags     TagStorage
	Objects  graph.Database
	Payloads PayloadStorage
	Renderer ManifestViewer

	// address identifies this repository's backing location, e.g. a
	// filesystem path or an s3:// URL.
	address string
}

// NewRepository assembles a Repository from its component stores.
func NewRepository(address string, tags TagStorage, objects graph.Database, payloads PayloadStorage, renderer ManifestViewer) *Repository {
	return &Repository{Tags: tags, Objects: objects, Payloads: payloads, Renderer: renderer, address: address}
}

// Address returns the repository's backing location.
func (r *Repository) Address() string {
	return r.address
}

// HasRef reports whether ref resolves to a known object.
func (r *Repository) HasRef(ctx context.Context, ref string) bool {
	_, err := r.ReadRef(ctx, ref)
	return err == nil
}

// ReadRef resolves ref as either a (possibly short) digest or a tag spec,
// and reads the object it identifies.
func (r *Repository) ReadRef(ctx context.Context, ref string) (graph.Object, error) {
	digest, err := r.resolveDigest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.Objects.ReadObject(digest)
}

// resolveDigest resolves ref to a digest, trying the object database first
// (covering full and short digest strings) and falling back to tag
// resolution, mirroring the original repository's read_ref.
func (r *Repository) resolveDigest(ctx context.Context, ref string) (encoding.Digest, error) {
	if digest, err := r.Objects.ResolveFullDigest(ref); err == nil {
		return digest, nil
	}
	spec, err := tracking.ParseTagSpec(ref)
	if err != nil {
		return encoding.Digest{}, spfserrors.UnknownReferenceError{Ref: ref}
	}
	tag, err := r.Tags.ResolveTag(ctx, spec)
	if err != nil {
		return encoding.Digest{}, err
	}
	return tag.Target, nil
}

// FindAliases returns every other identifier for ref: the tags that point
// at it, plus its full digest string when ref was not already that digest.
func (r *Repository) FindAliases(ctx context.Context, ref string) ([]string, error) {
	obj, err := r.ReadRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	digest, err := digestOf(obj)
	if err != nil {
		return nil, err
	}

	var aliases []string
	specs, err := r.Tags.FindTags(ctx, digest)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, spec := range specs {
		s := spec.String()
		if seen[s] || s == ref {
			continue
		}
		seen[s] = true
		aliases = append(aliases, s)
	}
	if ref != digest.String() {
		aliases = append(aliases, digest.String())
	}
	return aliases, nil
}

// HasLayer reports whether digest identifies a stored Layer.
func (r *Repository) HasLayer(digest encoding.Digest) bool {
	_, err := r.ReadLayer(digest)
	return err == nil
}

// ReadLayer reads and type-asserts the object at digest as a Layer.
func (r *Repository) ReadLayer(digest encoding.Digest) (Layer, error) {
	obj, err := r.Objects.ReadObject(digest)
	if err != nil {
		return Layer{}, err
	}
	layer, ok := obj.(Layer)
	if !ok {
		return Layer{}, spfserrors.CorruptObjectError{Reason: "loaded object is not a layer"}
	}
	return layer, nil
}

// HasPlatform reports whether digest identifies a stored Platform.
func (r *Repository) HasPlatform(digest encoding.Digest) bool {
	_, err := r.ReadPlatform(digest)
	return err == nil
}

// ReadPlatform reads and type-asserts the object at digest as a Platform.
func (r *Repository) ReadPlatform(digest encoding.Digest) (Platform, error) {
	obj, err := r.Objects.ReadObject(digest)
	if err != nil {
		return Platform{}, err
	}
	platform, ok := obj.(Platform)
	if !ok {
		return Platform{}, spfserrors.CorruptObjectError{Reason: "loaded object is not a platform"}
	}
	return platform, nil
}

// HasBlob reports whether digest identifies a stored Blob.
func (r *Repository) HasBlob(digest encoding.Digest) bool {
	_, err := r.ReadBlob(digest)
	return err == nil
}

// ReadBlob reads and type-asserts the object at digest as a Blob.
func (r *Repository) ReadBlob(digest encoding.Digest) (Blob, error) {
	obj, err := r.Objects.ReadObject(digest)
	if err != nil {
		return Blob{}, err
	}
	blob, ok := obj.(Blob)
	if !ok {
		return Blob{}, spfserrors.CorruptObjectError{Reason: "loaded object is not a blob"}
	}
	return blob, nil
}

// ReadManifest reads and type-asserts the object at digest as a Manifest.
func (r *Repository) ReadManifest(digest encoding.Digest) (*tracking.Manifest, error) {
	obj, err := r.Objects.ReadObject(digest)
	if err != nil {
		return nil, err
	}
	manifest, ok := obj.(*tracking.Manifest)
	if !ok {
		return nil, spfserrors.CorruptObjectError{Reason: "loaded object is not a manifest"}
	}
	return manifest, nil
}

// CreateLayer wraps manifest's digest in a new Layer object and stores that
// Layer. The manifest and its blobs are not written here.
func (r *Repository) CreateLayer(manifest *tracking.Manifest) (Layer, error) {
	digest, err := digestOf(manifest)
	if err != nil {
		return Layer{}, err
	}
	layer := Layer{Manifest: digest}
	if err := r.Objects.WriteObject(layer); err != nil {
		return Layer{}, err
	}
	return layer, nil
}

// CreatePlatform stores a new Platform wrapping the given layer stack,
// bottom to top.
func (r *Repository) CreatePlatform(stack []encoding.Digest) (Platform, error) {
	platform := Platform{Stack: stack}
	if err := r.Objects.WriteObject(platform); err != nil {
		return Platform{}, err
	}
	return platform, nil
}

// CommitDir walks a local filesystem directory, storing every regular
// file's (or symlink target's) content as a payload and every directory's
// structure as a Manifest, and returns that Manifest. It does not itself
// create a Layer; callers needing persistent history should wrap the
// result with CreateLayer.
func (r *Repository) CommitDir(ctx context.Context, root string) (*tracking.Manifest, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}

	logging.GetLogger(ctx).Debug("committing files")
	builder := tracking.NewManifestBuilder(abs)
	if err := r.commitWalk(ctx, abs, builder); err != nil {
		return nil, err
	}
	manifest, err := builder.Finalize()
	if err != nil {
		return nil, err
	}

	logging.GetLogger(ctx).Debug("writing manifest")
	if err := r.Objects.WriteObject(manifest); err != nil {
		return nil, err
	}
	for _, we := range manifest.Walk() {
		if we.Entry.Kind != tracking.EntryKindBlob {
			continue
		}
		blob := Blob{Payload: we.Entry.Object, Size: we.Entry.Size}
		if err := r.Objects.WriteObject(blob); err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

func (r *Repository) commitWalk(ctx context.Context, dir string, b *tracking.ManifestBuilder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return spfserrors.Io("readdir "+dir, err)
	}
	for _, de := range entries {
		p := filepath.Join(dir, de.Name())
		info, err := de.Info()
		if err != nil {
			return spfserrors.Io("stat "+p, err)
		}

		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return spfserrors.Io("readlink "+p, err)
			}
			digest, err := r.Payloads.WritePayload(ctx, bytes.NewReader([]byte(target)))
			if err != nil {
				return err
			}
			entry := tracking.Entry{Kind: tracking.EntryKindBlob, Mode: uint32(info.Mode()), Size: uint64(len(target)), Name: de.Name(), Object: digest}
			if err := addOrUpdate(b, p, entry); err != nil {
				return err
			}
		case info.IsDir():
			entry := tracking.Entry{Kind: tracking.EntryKindTree, Mode: uint32(info.Mode()), Name: de.Name()}
			if err := addOrUpdate(b, p, entry); err != nil {
				return err
			}
			if err := r.commitWalk(ctx, p, b); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			digest, err := r.commitFile(ctx, p)
			if err != nil {
				return err
			}
			entry := tracking.Entry{Kind: tracking.EntryKindBlob, Mode: uint32(info.Mode()), Size: uint64(info.Size()), Name: de.Name(), Object: digest}
			if err := addOrUpdate(b, p, entry); err != nil {
				return err
			}
		default:
			return spfserrors.UnsupportedFileKindError{Path: p, Kind: info.Mode().String()}
		}
	}
	return nil
}

func (r *Repository) commitFile(ctx context.Context, p string) (encoding.Digest, error) {
	f, err := os.Open(p)
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("open "+p, err)
	}
	defer f.Close()
	return r.Payloads.WritePayload(ctx, f)
}

func addOrUpdate(b *tracking.ManifestBuilder, p string, entry tracking.Entry) error {
	if err := b.AddEntry(p, entry); err != nil {
		return b.UpdateEntry(p, entry)
	}
	return nil
}

// CommitLayer commits the working changes under dir to a new Layer,
// failing with NothingToCommitError if the resulting manifest is empty.
func (r *Repository) CommitLayer(ctx context.Context, dir string) (Layer, error) {
	manifest, err := r.CommitDir(ctx, dir)
	if err != nil {
		return Layer{}, err
	}
	if manifest.IsEmpty() {
		return Layer{}, spfserrors.NothingToCommitError{Path: dir}
	}
	return r.CreateLayer(manifest)
}

// CommitPlatform stores stack (bottom to top) as a new Platform, failing
// with NothingToCommitError if stack is empty.
func (r *Repository) CommitPlatform(stack []encoding.Digest) (Platform, error) {
	if len(stack) == 0 {
		return Platform{}, spfserrors.NothingToCommitError{Path: "<empty stack>"}
	}
	return r.CreatePlatform(stack)
}

func digestOf(obj graph.Object) (encoding.Digest, error) {
	if b, ok := obj.(Blob); ok {
		return b.Digest(), nil
	}
	return graph.DigestOfObject(obj)
}
