package storage

import (
	"context"
	"io"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/tracking"
)

// PayloadStorage stores raw byte streams keyed by digest, write-once,
// read-many, sharded on disk by digest prefix.
type PayloadStorage interface {
	WritePayload(ctx context.Context, r io.Reader) (encoding.Digest, error)
	OpenPayload(ctx context.Context, d encoding.Digest) (io.ReadCloser, error)
	RemovePayload(ctx context.Context, d encoding.Digest) error
	IterDigests(ctx context.Context) ([]encoding.Digest, error)
	ResolveFullDigest(ctx context.Context, prefix string) (encoding.Digest, error)
}

// TagStorage is an append-only store of per-name Tag histories.
type TagStorage interface {
	// PushTag appends target as the new head of name's stream, unless the
	// current head already points at target (duplicate suppression).
	PushTag(ctx context.Context, name string, target encoding.Digest) (tracking.Tag, error)
	// PushRawTag appends tag verbatim, bypassing duplicate suppression.
	PushRawTag(ctx context.Context, tag tracking.Tag) error
	ResolveTag(ctx context.Context, spec tracking.TagSpec) (tracking.Tag, error)
	RemoveTagStream(ctx context.Context, name string) error
	RemoveTag(ctx context.Context, tag tracking.Tag) error
	// ListTagPaths lists directory children at a tag-path prefix, with the
	// ".tag" suffix stripped.
	ListTagPaths(ctx context.Context, prefix string) ([]string, error)
	FindTags(ctx context.Context, d encoding.Digest) ([]tracking.TagSpec, error)
	IterStreamNames(ctx context.Context) ([]string, error)
	// ReadTagStream returns every record in name's stream, newest first.
	ReadTagStream(ctx context.Context, name string) ([]tracking.Tag, error)
}

// ManifestViewer materializes Manifests to on-disk directory trees using
// hard links from a payload store, and removes those renders.
type ManifestViewer interface {
	RenderManifest(ctx context.Context, m *tracking.Manifest) (string, error)
	RemoveRenderedManifest(ctx context.Context, d encoding.Digest) error
	HasRender(ctx context.Context, d encoding.Digest) (bool, error)
}
