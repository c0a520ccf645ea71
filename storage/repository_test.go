package storage_test

import (
	"context"
	"os"
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

func writeWorkingTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("file a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("file b"), 0o644))
	return dir
}

func TestCommitDirBuildsManifestAndBlobs(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := writeWorkingTree(t)

	manifest, err := repo.CommitDir(ctx, dir)
	require.NoError(t, err)
	require.False(t, manifest.IsEmpty())

	for _, we := range manifest.Walk() {
		if we.Entry.Kind == tracking.EntryKindBlob {
			require.True(t, repo.HasBlob(we.Entry.Object))
		}
	}
}

func TestCommitLayerAndReadRef(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := writeWorkingTree(t)

	layer, err := repo.CommitLayer(ctx, dir)
	require.NoError(t, err)

	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)
	require.True(t, repo.HasLayer(layerDigest))

	obj, err := repo.ReadRef(ctx, layerDigest.String())
	require.NoError(t, err)
	require.Equal(t, layer, obj)
}

func TestCommitLayerOnEmptyDirFails(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	empty := t.TempDir()

	_, err := repo.CommitLayer(ctx, empty)
	require.Error(t, err)
}

func TestReadRefResolvesTagsAndDigests(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := writeWorkingTree(t)

	layer, err := repo.CommitLayer(ctx, dir)
	require.NoError(t, err)
	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)

	_, err = repo.Tags.PushTag(ctx, "myorg/mytag", layerDigest)
	require.NoError(t, err)

	obj, err := repo.ReadRef(ctx, "myorg/mytag")
	require.NoError(t, err)
	require.Equal(t, layer, obj)

	require.True(t, repo.HasRef(ctx, layerDigest.String()[:8]))
}

func TestFindAliasesListsTagsAndDigest(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := writeWorkingTree(t)

	layer, err := repo.CommitLayer(ctx, dir)
	require.NoError(t, err)
	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)

	_, err = repo.Tags.PushTag(ctx, "myorg/first", layerDigest)
	require.NoError(t, err)
	_, err = repo.Tags.PushTag(ctx, "myorg/second", layerDigest)
	require.NoError(t, err)

	aliases, err := repo.FindAliases(ctx, "myorg/first")
	require.NoError(t, err)
	require.Contains(t, aliases, "myorg/second")
	require.Contains(t, aliases, layerDigest.String())
	require.NotContains(t, aliases, "myorg/first")
}

func TestCreatePlatformAndCommitPlatform(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	dir := writeWorkingTree(t)

	layer, err := repo.CommitLayer(ctx, dir)
	require.NoError(t, err)
	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)

	platform, err := repo.CreatePlatform([]encoding.Digest{layerDigest})
	require.NoError(t, err)

	platformDigest, err := graph.DigestOfObject(platform)
	require.NoError(t, err)
	require.True(t, repo.HasPlatform(platformDigest))

	_, err = repo.CommitPlatform(nil)
	require.Error(t, err)
}
