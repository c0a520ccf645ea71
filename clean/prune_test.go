package clean

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/storage/fs"
	"github.com/spfs-io/spfs/tracking"
)

func randomDigest(t *testing.T, seed int) encoding.Digest {
	t.Helper()
	return encoding.NewHasher([]byte(fmt.Sprintf("seed-%d", seed))).Digest()
}

func openTagStorage(t *testing.T) *fs.TagStorage {
	t.Helper()
	tags, err := fs.NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)
	return tags
}

func pushVersions(t *testing.T, ctx context.Context, tags *fs.TagStorage, name string, n int, oldest time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		tag, err := tracking.NewTag("myorg", name, randomDigest(t, i))
		require.NoError(t, err)
		tag.Time = oldest.Add(time.Duration(i) * time.Hour)
		require.NoError(t, tags.PushRawTag(ctx, tag))
	}
}

func TestShouldPruneOrdersKeepBeforePrune(t *testing.T) {
	now := time.Now()
	old := now.Add(-30 * 24 * time.Hour)

	params := PruneParameters{
		PruneIfOlderThan:      now.Add(-7 * 24 * time.Hour),
		KeepIfVersionLessThan: 2,
	}

	spec, err := tracking.BuildTagSpec("myorg", "mytag", 0)
	require.NoError(t, err)
	tag := tracking.Tag{Org: "myorg", Name: "mytag", Time: old}

	require.False(t, params.ShouldPrune(spec, tag), "version below KeepIfVersionLessThan must survive even though it's old")

	spec2, err := tracking.BuildTagSpec("myorg", "mytag", 5)
	require.NoError(t, err)
	require.True(t, params.ShouldPrune(spec2, tag))
}

func TestShouldPruneKeepIfNewerThanWins(t *testing.T) {
	now := time.Now()
	params := PruneParameters{
		PruneIfVersionMoreThan: 0,
		KeepIfNewerThan:        now.Add(-time.Hour),
	}
	params.PruneIfVersionMoreThan = 1

	spec, err := tracking.BuildTagSpec("myorg", "mytag", 3)
	require.NoError(t, err)
	tag := tracking.Tag{Org: "myorg", Name: "mytag", Time: now}

	require.False(t, params.ShouldPrune(spec, tag), "a recent tag must survive even at a high version")
}

func TestGetPrunableTagsAndPruneTags(t *testing.T) {
	ctx := context.Background()
	tags := openTagStorage(t)

	oldest := time.Now().Add(-10 * time.Hour)
	pushVersions(t, ctx, tags, "mytag", 5, oldest)

	params := PruneParameters{PruneIfOlderThan: time.Now(), KeepIfVersionLessThan: 2}

	prunable, err := GetPrunableTags(ctx, tags, params)
	require.NoError(t, err)
	require.NotEmpty(t, prunable)

	removed, err := PruneTags(ctx, tags, params)
	require.NoError(t, err)
	require.Len(t, removed, len(prunable))

	stream, err := tags.ReadTagStream(ctx, "myorg/mytag")
	require.NoError(t, err)
	require.Len(t, stream, 2)
}
