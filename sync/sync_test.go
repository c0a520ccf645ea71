package sync

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/storage"
	"github.com/spfs-io/spfs/storage/fs"
	"github.com/spfs-io/spfs/tracking"
)

func openRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := fs.Open(filepath.Join(t.TempDir(), "repo"), true)
	require.NoError(t, err)
	return repo
}

// writeBlob stores content's payload and Blob record in repo, returning
// the Blob.
func writeBlob(t *testing.T, ctx context.Context, repo *storage.Repository, content string) storage.Blob {
	t.Helper()
	digest, err := repo.Payloads.WritePayload(ctx, bytes.NewReader([]byte(content)))
	require.NoError(t, err)
	blob := storage.Blob{Payload: digest, Size: uint64(len(content))}
	require.NoError(t, repo.Objects.WriteObject(blob))
	return blob
}

func TestObjectSyncsBlob(t *testing.T) {
	ctx := context.Background()
	src, dest := openRepo(t), openRepo(t)

	blob := writeBlob(t, ctx, src, "hello world")

	require.NoError(t, Object(ctx, blob, src, dest, Options{}))

	require.True(t, dest.HasBlob(blob.Payload))
	r, err := dest.Payloads.OpenPayload(ctx, blob.Payload)
	require.NoError(t, err)
	defer r.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", buf.String())
}

func buildLayer(t *testing.T, ctx context.Context, repo *storage.Repository, content string) storage.Layer {
	t.Helper()
	blob := writeBlob(t, ctx, repo, content)

	b := tracking.NewManifestBuilder("/")
	require.NoError(t, b.AddEntry("/file.txt", tracking.Entry{
		Kind:   tracking.EntryKindBlob,
		Object: blob.Payload,
		Size:   blob.Size,
		Name:   "file.txt",
	}))
	manifest, err := b.Finalize()
	require.NoError(t, err)
	require.NoError(t, repo.Objects.WriteObject(manifest))

	layer := storage.Layer{Manifest: manifestDigest(t, manifest)}
	require.NoError(t, repo.Objects.WriteObject(layer))
	return layer
}

func manifestDigest(t *testing.T, m *tracking.Manifest) encoding.Digest {
	t.Helper()
	digest, err := graph.DigestOfObject(m)
	require.NoError(t, err)
	return digest
}

func TestLayerSyncsManifestAndBlobs(t *testing.T) {
	ctx := context.Background()
	src, dest := openRepo(t), openRepo(t)

	layer := buildLayer(t, ctx, src, "layer contents")

	require.NoError(t, Layer(ctx, layer, src, dest, Options{}))

	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)
	require.True(t, dest.HasLayer(layerDigest))

	manifest, err := dest.ReadManifest(layer.Manifest)
	require.NoError(t, err)
	entries := manifest.Walk()
	require.Len(t, entries, 1)
	require.True(t, dest.HasBlob(entries[0].Entry.Object))
}

func TestLayerSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src, dest := openRepo(t), openRepo(t)
	layer := buildLayer(t, ctx, src, "v1")

	require.NoError(t, Layer(ctx, layer, src, dest, Options{}))
	require.NoError(t, Layer(ctx, layer, src, dest, Options{}))
}

func TestRefSyncsResolvedTag(t *testing.T) {
	ctx := context.Background()
	src, dest := openRepo(t), openRepo(t)

	layer := buildLayer(t, ctx, src, "tagged")
	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)
	_, err = src.Tags.PushTag(ctx, "myorg/mytag", layerDigest)
	require.NoError(t, err)

	obj, err := Ref(ctx, "myorg/mytag", src, dest, Options{})
	require.NoError(t, err)
	require.Equal(t, layer, obj)

	spec, err := tracking.ParseTagSpec("myorg/mytag")
	require.NoError(t, err)
	tag, err := dest.Tags.ResolveTag(ctx, spec)
	require.NoError(t, err)
	require.Equal(t, layerDigest, tag.Target)
}
