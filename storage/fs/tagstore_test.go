package fs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/tracking"
)

func digestFor(content string) encoding.Digest {
	return encoding.NewHasher([]byte(content)).Digest()
}

func TestPushTagCreatesAndAdvancesHead(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	v1, err := s.PushTag(ctx, "myorg/mytag", digestFor("v1"))
	require.NoError(t, err)
	require.Equal(t, encoding.NullDigest, v1.Parent)

	v2, err := s.PushTag(ctx, "myorg/mytag", digestFor("v2"))
	require.NoError(t, err)

	v1Digest, err := v1.Digest()
	require.NoError(t, err)
	require.Equal(t, v1Digest, v2.Parent)

	stream, err := s.ReadTagStream(ctx, "myorg/mytag")
	require.NoError(t, err)
	require.Len(t, stream, 2)
	require.Equal(t, digestFor("v2"), stream[0].Target, "newest first")
	require.Equal(t, digestFor("v1"), stream[1].Target)
}

func TestPushTagIsNoOpWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	target := digestFor("same")
	first, err := s.PushTag(ctx, "myorg/mytag", target)
	require.NoError(t, err)
	second, err := s.PushTag(ctx, "myorg/mytag", target)
	require.NoError(t, err)
	require.Equal(t, first, second)

	stream, err := s.ReadTagStream(ctx, "myorg/mytag")
	require.NoError(t, err)
	require.Len(t, stream, 1)
}

func TestResolveTagByVersion(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	_, err = s.PushTag(ctx, "myorg/mytag", digestFor("v1"))
	require.NoError(t, err)
	_, err = s.PushTag(ctx, "myorg/mytag", digestFor("v2"))
	require.NoError(t, err)

	head, err := s.ResolveTag(ctx, tracking.TagSpec{Org: "myorg", Name: "mytag"})
	require.NoError(t, err)
	require.Equal(t, digestFor("v2"), head.Target)

	prev, err := s.ResolveTag(ctx, tracking.TagSpec{Org: "myorg", Name: "mytag", Version: 1})
	require.NoError(t, err)
	require.Equal(t, digestFor("v1"), prev.Target)

	_, err = s.ResolveTag(ctx, tracking.TagSpec{Org: "myorg", Name: "mytag", Version: 5})
	require.IsType(t, spfserrors.UnknownReferenceError{}, err)
}

func TestFindTags(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	target := digestFor("shared target")
	_, err = s.PushTag(ctx, "myorg/a", target)
	require.NoError(t, err)
	_, err = s.PushTag(ctx, "myorg/b", target)
	require.NoError(t, err)

	specs, err := s.FindTags(ctx, target)
	require.NoError(t, err)
	require.Len(t, specs, 2)
}

func TestRemoveTagStream(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	_, err = s.PushTag(ctx, "myorg/mytag", digestFor("v1"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveTagStream(ctx, "myorg/mytag"))

	_, err = s.ReadTagStream(ctx, "myorg/mytag")
	require.IsType(t, spfserrors.UnknownReferenceError{}, err)

	err = s.RemoveTagStream(ctx, "myorg/mytag")
	require.IsType(t, spfserrors.UnknownReferenceError{}, err)
}

func TestRemoveTagLeavesRestOfHistoryIntact(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	_, err = s.PushTag(ctx, "myorg/mytag", digestFor("v1"))
	require.NoError(t, err)
	v2, err := s.PushTag(ctx, "myorg/mytag", digestFor("v2"))
	require.NoError(t, err)
	_, err = s.PushTag(ctx, "myorg/mytag", digestFor("v3"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveTag(ctx, v2))

	stream, err := s.ReadTagStream(ctx, "myorg/mytag")
	require.NoError(t, err)
	require.Len(t, stream, 2)
	for _, tag := range stream {
		require.NotEqual(t, digestFor("v2"), tag.Target)
	}
}

func TestIterStreamNamesAndListTagPaths(t *testing.T) {
	ctx := context.Background()
	s, err := NewTagStorage(filepath.Join(t.TempDir(), "tags"))
	require.NoError(t, err)

	_, err = s.PushTag(ctx, "myorg/project/a", digestFor("a"))
	require.NoError(t, err)
	_, err = s.PushTag(ctx, "myorg/project/b", digestFor("b"))
	require.NoError(t, err)

	names, err := s.IterStreamNames(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"myorg/project/a", "myorg/project/b"}, names)

	paths, err := s.ListTagPaths(ctx, "myorg/project")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, paths)
}
