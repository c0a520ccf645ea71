package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/tracking"
)

const completedSuffix = ".completed"

// Renderer materializes Manifests as hard-linked directory trees, keyed by
// manifest digest so a render can be reused across commits that share
// content.
type Renderer struct {
	root     string
	payloads *PayloadStorage
}

// NewRenderer returns a Renderer that writes renders under root, pulling
// blob content from payloads.
func NewRenderer(root string, payloads *PayloadStorage) (*Renderer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}
	return &Renderer{root: abs, payloads: payloads}, nil
}

func (r *Renderer) renderPath(digest encoding.Digest) string {
	str := digest.String()
	return filepath.Join(r.root, str[:2], str[2:])
}

// HasRender reports whether digest's manifest has already been rendered.
func (r *Renderer) HasRender(ctx context.Context, digest encoding.Digest) (bool, error) {
	_, err := os.Stat(r.renderPath(digest) + completedSuffix)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, spfserrors.Io("stat", err)
	}
	return true, nil
}

// RenderManifest materializes manifest's root tree at a digest-addressed
// directory, hard-linking blob content in from the payload store, and
// returns the rendered root's path. Calling this again for a manifest that
// was already fully rendered is a cheap no-op.
func (r *Renderer) RenderManifest(ctx context.Context, manifest *tracking.Manifest) (string, error) {
	// Keyed by the same digest storage.Repository uses to store the
	// Manifest object, so a render can be found from a Layer's reference.
	digest, err := graph.DigestOfObject(manifest)
	if err != nil {
		return "", err
	}
	renderRoot := r.renderPath(digest)

	if done, err := r.HasRender(ctx, digest); err != nil {
		return "", err
	} else if done {
		return renderRoot, nil
	}

	if err := makedirsWithPerms(filepath.Dir(renderRoot), defaultDirPerm); err != nil {
		return "", err
	}
	if err := os.Mkdir(renderRoot, 0o777); err != nil && !os.IsExist(err) {
		return "", spfserrors.Io("mkdir "+renderRoot, err)
	}

	entries := manifest.WalkAbs(renderRoot)
	for _, we := range entries {
		switch we.Entry.Kind {
		case tracking.EntryKindTree:
			if err := os.MkdirAll(we.Path, 0o777); err != nil {
				return "", spfserrors.Io("mkdir "+we.Path, err)
			}
		case tracking.EntryKindMask:
			continue
		case tracking.EntryKindBlob:
			if err := r.renderBlob(ctx, we.Path, we.Entry); err != nil {
				return "", err
			}
		}
	}

	for i := len(entries) - 1; i >= 0; i-- {
		we := entries[i]
		if we.Entry.Kind == tracking.EntryKindMask || we.Entry.IsSymlink() {
			continue
		}
		if err := os.Chmod(we.Path, os.FileMode(we.Entry.Mode)); err != nil {
			return "", spfserrors.Io("chmod "+we.Path, err)
		}
	}

	f, err := os.Create(renderRoot + completedSuffix)
	if err != nil {
		return "", spfserrors.Io("mark completed", err)
	}
	f.Close()

	return renderRoot, nil
}

func (r *Renderer) renderBlob(ctx context.Context, renderedPath string, entry tracking.Entry) error {
	if entry.IsSymlink() {
		rc, err := r.payloads.OpenPayload(ctx, entry.Object)
		if err != nil {
			return err
		}
		target, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return spfserrors.Io("read symlink payload", err)
		}
		if err := os.Symlink(string(target), renderedPath); err != nil && !os.IsExist(err) {
			return spfserrors.Io("symlink "+renderedPath, err)
		}
		return nil
	}

	committedPath := r.payloads.digestPath(entry.Object)
	if err := os.Link(committedPath, renderedPath); err == nil || os.IsExist(err) {
		return nil
	}

	src, err := r.payloads.OpenPayload(ctx, entry.Object)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(renderedPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return spfserrors.Io("create "+renderedPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return spfserrors.Io("copy "+renderedPath, err)
	}
	return nil
}

// RemoveRenderedManifest removes the render identified by digest, by first
// moving it aside (so a half-deleted render is never mistaken for a valid
// one) and then recursively unwinding the copy.
func (r *Renderer) RemoveRenderedManifest(ctx context.Context, digest encoding.Digest) error {
	renderRoot := r.renderPath(digest)
	working := filepath.Join(r.root, "work-"+uuid.New().String())

	if err := os.Rename(renderRoot, working); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return spfserrors.Io("rename "+renderRoot, err)
	}
	os.Remove(renderRoot + completedSuffix)

	return removeTreeChmodFirst(working)
}

func removeTreeChmodFirst(root string) error {
	os.Chmod(root, 0o777)
	entries, err := os.ReadDir(root)
	if err != nil {
		return spfserrors.Io("readdir "+root, err)
	}
	for _, e := range entries {
		p := filepath.Join(root, e.Name())
		if e.IsDir() {
			if err := removeTreeChmodFirst(p); err != nil {
				return err
			}
			os.Chmod(p, 0o777)
			if err := os.Remove(p); err != nil {
				return spfserrors.Io("rmdir "+p, err)
			}
			continue
		}
		os.Chmod(p, 0o777)
		if err := os.Remove(p); err != nil {
			return spfserrors.Io("remove "+p, err)
		}
	}
	return os.Remove(root)
}
