package clean

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

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

func writeBlob(t *testing.T, ctx context.Context, repo *storage.Repository, content string) storage.Blob {
	t.Helper()
	digest, err := repo.Payloads.WritePayload(ctx, bytes.NewReader([]byte(content)))
	require.NoError(t, err)
	blob := storage.Blob{Payload: digest, Size: uint64(len(content))}
	require.NoError(t, repo.Objects.WriteObject(blob))
	return blob
}

func writeLayer(t *testing.T, ctx context.Context, repo *storage.Repository, content string) storage.Layer {
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

	manifestDigest, err := graph.DigestOfObject(manifest)
	require.NoError(t, err)
	layer := storage.Layer{Manifest: manifestDigest}
	require.NoError(t, repo.Objects.WriteObject(layer))
	return layer
}

func TestGetAllAttachedObjectsIncludesLayerBlobs(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	layer := writeLayer(t, ctx, repo, "tagged contents")
	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)
	_, err = repo.Tags.PushTag(ctx, "myorg/tag", layerDigest)
	require.NoError(t, err)

	attached, err := GetAllAttachedObjects(ctx, repo)
	require.NoError(t, err)

	require.True(t, attached[layerDigest])
	require.True(t, attached[layer.Manifest])

	manifest, err := repo.ReadManifest(layer.Manifest)
	require.NoError(t, err)
	for _, we := range manifest.Walk() {
		if we.Entry.Kind == tracking.EntryKindBlob {
			require.True(t, attached[we.Entry.Object], "blob %s should be attached", we.Entry.Object)
		}
	}
}

func TestCleanUntaggedObjectsRemovesOrphans(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	keptLayer := writeLayer(t, ctx, repo, "kept")
	keptDigest, err := graph.DigestOfObject(keptLayer)
	require.NoError(t, err)
	_, err = repo.Tags.PushTag(ctx, "myorg/kept", keptDigest)
	require.NoError(t, err)

	orphanLayer := writeLayer(t, ctx, repo, "orphaned")
	orphanDigest, err := graph.DigestOfObject(orphanLayer)
	require.NoError(t, err)

	require.NoError(t, CleanUntaggedObjects(ctx, repo, Options{}))

	require.True(t, repo.HasLayer(keptDigest))
	require.False(t, repo.HasLayer(orphanDigest))
}

func TestCleanUntaggedObjectsLeavesAttachedBlobsAlone(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	layer := writeLayer(t, ctx, repo, "payload must survive")
	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)
	_, err = repo.Tags.PushTag(ctx, "myorg/tag", layerDigest)
	require.NoError(t, err)

	manifest, err := repo.ReadManifest(layer.Manifest)
	require.NoError(t, err)
	blobDigest := manifest.Walk()[0].Entry.Object

	require.NoError(t, CleanUntaggedObjects(ctx, repo, Options{}))

	require.True(t, repo.HasBlob(blobDigest))
}

func TestCleanUntaggedObjectsCheckpointMarkThenSweep(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	checkpointDir := t.TempDir()

	orphanLayer := writeLayer(t, ctx, repo, "orphan")
	orphanDigest, err := graph.DigestOfObject(orphanLayer)
	require.NoError(t, err)

	err = CleanUntaggedObjects(ctx, repo, Options{CheckpointDir: checkpointDir, MarkOnly: true})
	require.NoError(t, err)
	require.True(t, repo.HasLayer(orphanDigest), "mark phase must not remove anything")

	err = CleanUntaggedObjects(ctx, repo, Options{CheckpointDir: checkpointDir, SweepOnly: true})
	require.NoError(t, err)
	require.False(t, repo.HasLayer(orphanDigest))
}

func TestCleanUntaggedObjectsRejectsConflictingOptions(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	err := CleanUntaggedObjects(ctx, repo, Options{MarkOnly: true, SweepOnly: true})
	require.Error(t, err)
}
