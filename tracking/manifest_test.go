package tracking

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spfs-io/spfs/encoding"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o775))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func TestComputeManifestDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "b", "c.txt"), "hello", 0o644)
	writeFile(t, filepath.Join(dir, "x.txt"), "world", 0o640)
	require.NoError(t, os.Symlink("b/c.txt", filepath.Join(dir, "a", "link")))

	m1, err := ComputeManifest(dir)
	require.NoError(t, err)
	m2, err := ComputeManifest(dir)
	require.NoError(t, err)

	d1, err := m1.RootDigest()
	require.NoError(t, err)
	d2, err := m2.RootDigest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	entry, err := m1.GetPath("/x.txt")
	require.NoError(t, err)
	require.Equal(t, EntryKindBlob, entry.Kind)
}

func TestComputeDiff(t *testing.T) {
	dirA := t.TempDir()
	writeFile(t, filepath.Join(dirA, "same.txt"), "same", 0o644)
	writeFile(t, filepath.Join(dirA, "removed.txt"), "gone", 0o644)

	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirB, "same.txt"), "same", 0o644)
	writeFile(t, filepath.Join(dirB, "added.txt"), "new", 0o644)

	a, err := ComputeManifest(dirA)
	require.NoError(t, err)
	b, err := ComputeManifest(dirB)
	require.NoError(t, err)

	diffs := ComputeDiff(a, b)
	modes := map[string]DiffMode{}
	for _, d := range diffs {
		modes[d.Path] = d.Mode
	}
	require.Equal(t, DiffUnchanged, modes["/same.txt"])
	require.Equal(t, DiffRemoved, modes["/removed.txt"])
	require.Equal(t, DiffAdded, modes["/added.txt"])
}

func TestLayerManifestsMasking(t *testing.T) {
	lower := t.TempDir()
	writeFile(t, filepath.Join(lower, "file.txt"), "v1", 0o644)
	lowerManifest, err := ComputeManifest(lower)
	require.NoError(t, err)

	upperBuilder := NewManifestBuilder("/")
	require.NoError(t, upperBuilder.AddEntry("/file.txt", Entry{Kind: EntryKindMask, Name: "file.txt"}))
	require.NoError(t, upperBuilder.AddEntry("/other.txt", Entry{Kind: EntryKindBlob, Name: "other.txt", Object: encoding.EmptyDigest}))
	upperManifest, err := upperBuilder.Finalize()
	require.NoError(t, err)

	merged, err := LayerManifests(lowerManifest, upperManifest)
	require.NoError(t, err)

	_, err = merged.GetPath("/file.txt")
	require.Error(t, err)
	entry, err := merged.GetPath("/other.txt")
	require.NoError(t, err)
	require.Equal(t, EntryKindBlob, entry.Kind)
}

func TestParseTagSpec(t *testing.T) {
	spec, err := ParseTagSpec("org/name~4")
	require.NoError(t, err)
	require.Equal(t, "org", spec.Org)
	require.Equal(t, "name", spec.Name)
	require.Equal(t, 4, spec.Version)

	spec, err = ParseTagSpec("name")
	require.NoError(t, err)
	require.Equal(t, "", spec.Org)
	require.Equal(t, 0, spec.Version)

	_, err = ParseTagSpec("")
	require.Error(t, err)
}

func TestTagEncodeDecodeRoundTrip(t *testing.T) {
	tag, err := NewTag("org", "name", encoding.EmptyDigest)
	require.NoError(t, err)
	tag.Message = "not persisted"

	d1, err := tag.Digest()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tag.Encode(encoding.NewWriter(&buf)))

	got, err := DecodeTag(encoding.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "", got.Message)

	d2, err := got.Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}
