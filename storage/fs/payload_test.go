package fs

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/spfserrors"
)

func TestPayloadStorageRoundTrips(t *testing.T) {
	ctx := context.Background()
	s, err := NewPayloadStorage(filepath.Join(t.TempDir(), "payloads"))
	require.NoError(t, err)

	digest, err := s.WritePayload(ctx, bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)

	r, err := s.OpenPayload(ctx, digest)
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}

func TestPayloadStorageWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewPayloadStorage(filepath.Join(t.TempDir(), "payloads"))
	require.NoError(t, err)

	d1, err := s.WritePayload(ctx, bytes.NewReader([]byte("same content")))
	require.NoError(t, err)
	d2, err := s.WritePayload(ctx, bytes.NewReader([]byte("same content")))
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestOpenPayloadUnknownDigest(t *testing.T) {
	ctx := context.Background()
	s, err := NewPayloadStorage(filepath.Join(t.TempDir(), "payloads"))
	require.NoError(t, err)

	other, err := NewPayloadStorage(filepath.Join(t.TempDir(), "other"))
	require.NoError(t, err)
	d, err := other.WritePayload(ctx, bytes.NewReader([]byte("never written to s")))
	require.NoError(t, err)

	_, err = s.OpenPayload(ctx, d)
	require.Error(t, err)
	require.IsType(t, spfserrors.UnknownObjectError{}, err)
}

func TestRemovePayload(t *testing.T) {
	ctx := context.Background()
	s, err := NewPayloadStorage(filepath.Join(t.TempDir(), "payloads"))
	require.NoError(t, err)

	digest, err := s.WritePayload(ctx, bytes.NewReader([]byte("removable")))
	require.NoError(t, err)

	require.NoError(t, s.RemovePayload(ctx, digest))

	_, err = s.OpenPayload(ctx, digest)
	require.Error(t, err)

	err = s.RemovePayload(ctx, digest)
	require.IsType(t, spfserrors.UnknownObjectError{}, err)
}

func TestIterDigestsListsEverythingWritten(t *testing.T) {
	ctx := context.Background()
	s, err := NewPayloadStorage(filepath.Join(t.TempDir(), "payloads"))
	require.NoError(t, err)

	var written []string
	for _, content := range []string{"a", "b", "c"} {
		d, err := s.WritePayload(ctx, bytes.NewReader([]byte(content)))
		require.NoError(t, err)
		written = append(written, d.String())
	}

	digests, err := s.IterDigests(ctx)
	require.NoError(t, err)
	require.Len(t, digests, 3)

	var found []string
	for _, d := range digests {
		found = append(found, d.String())
	}
	require.ElementsMatch(t, written, found)
}

func TestResolveFullDigestDisambiguatesPrefixes(t *testing.T) {
	ctx := context.Background()
	s, err := NewPayloadStorage(filepath.Join(t.TempDir(), "payloads"))
	require.NoError(t, err)

	digest, err := s.WritePayload(ctx, bytes.NewReader([]byte("unique content")))
	require.NoError(t, err)

	full := digest.String()
	resolved, err := s.ResolveFullDigest(ctx, full[:8])
	require.NoError(t, err)
	require.Equal(t, digest, resolved)

	_, err = s.ResolveFullDigest(ctx, "zzzzzzzz")
	require.Error(t, err)
	require.IsType(t, spfserrors.UnknownReferenceError{}, err)
}
