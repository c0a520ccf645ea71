package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, defaultStorageRoot, cfg.Storage.Root)
	require.Equal(t, defaultRuntimeRoot, cfg.Storage.RuntimeRoot)
	require.Empty(t, cfg.ListRemoteNames())
}

func TestLoadMergesFilesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.yaml")

	require.NoError(t, os.WriteFile(base, []byte(`
storage:
  root: /srv/spfs
  runtime_root: /srv/spfs/runtimes
remotes:
  origin:
    address: /mnt/spfs-origin
`), 0o644))
	require.NoError(t, os.WriteFile(override, []byte(`
remotes:
  origin:
    address: /mnt/spfs-origin-v2
  backup:
    address: /mnt/spfs-backup
`), 0o644))

	cfg, err := Load(base, override, filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "/srv/spfs", cfg.Storage.Root)
	require.Equal(t, "/mnt/spfs-origin-v2", cfg.Remotes["origin"].Address)
	require.Equal(t, "/mnt/spfs-backup", cfg.Remotes["backup"].Address)
}

func TestStorageRootExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Config{Storage: Storage{Root: "~/spfs-data"}}
	root, err := cfg.StorageRoot()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "spfs-data"), root)
}

func TestGetRemoteFallsBackToLiteralAddress(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Remotes: map[string]Remote{
		"origin": {Address: filepath.Join(dir, "origin")},
	}}

	repo, err := cfg.GetRemote(filepath.Join(dir, "origin"))
	require.Error(t, err) // not created yet, and GetRemote never creates remotes
	require.Nil(t, repo)
}
