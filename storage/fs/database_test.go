package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
)

func TestDatabaseWriteReadRoundTrip(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	blob := storage.Blob{Payload: encoding.NewHasher([]byte("content")).Digest(), Size: 7}
	require.NoError(t, db.WriteObject(blob))

	require.True(t, db.HasObject(blob.Digest()))

	got, err := db.ReadObject(blob.Digest())
	require.NoError(t, err)
	require.Equal(t, blob, got)
}

func TestDatabaseWriteObjectIsIdempotent(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	blob := storage.Blob{Payload: encoding.NewHasher([]byte("content")).Digest(), Size: 7}
	require.NoError(t, db.WriteObject(blob))
	require.NoError(t, db.WriteObject(blob))
}

func TestDatabaseReadUnknownObject(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	_, err = db.ReadObject(encoding.NewHasher([]byte("missing")).Digest())
	require.Error(t, err)
	require.IsType(t, spfserrors.UnknownObjectError{}, err)
}

func TestDatabaseRemoveObject(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	blob := storage.Blob{Payload: encoding.NewHasher([]byte("removable")).Digest(), Size: 9}
	require.NoError(t, db.WriteObject(blob))
	require.NoError(t, db.RemoveObject(blob.Digest()))
	require.False(t, db.HasObject(blob.Digest()))

	err = db.RemoveObject(blob.Digest())
	require.IsType(t, spfserrors.UnknownObjectError{}, err)
}

func TestDatabaseIterDigestsAndObjects(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	blobs := []storage.Blob{
		{Payload: encoding.NewHasher([]byte("a")).Digest(), Size: 1},
		{Payload: encoding.NewHasher([]byte("b")).Digest(), Size: 1},
	}
	for _, b := range blobs {
		require.NoError(t, db.WriteObject(b))
	}

	digests, err := db.IterDigests()
	require.NoError(t, err)
	require.Len(t, digests, 2)

	objs, err := db.IterObjects()
	require.NoError(t, err)
	require.Len(t, objs, 2)
}

func TestDatabaseWalkObjectsFollowsLayerToManifest(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	manifestDigest := encoding.NewHasher([]byte("a manifest")).Digest()
	layer := storage.Layer{Manifest: manifestDigest}
	require.NoError(t, db.WriteObject(layer))

	layerDigest, err := graph.DigestOfObject(layer)
	require.NoError(t, err)

	_, err = db.WalkObjects(layerDigest)
	require.Error(t, err, "manifest was never written, so walking must surface the missing child")
}
