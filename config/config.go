// Package config defines the user-facing configuration for an spfs
// installation: where its local repository and runtime storage live, and
// the set of named remotes it knows how to reach. Unlike the source's
// process-wide configuration singleton, a Config here is loaded once by
// the caller and threaded through explicitly.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/spfs-io/spfs/runtime"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
	"github.com/spfs-io/spfs/storage/fs"
)

// Remote names the address of a single remote repository.
type Remote struct {
	Address string `yaml:"address"`
}

// Storage configures where local repository and runtime state live on disk.
type Storage struct {
	// Root is the local repository's root directory (a bare path or a
	// "file://" address).
	Root string `yaml:"root"`

	// RuntimeRoot is the root directory under which active runtimes are
	// tracked.
	RuntimeRoot string `yaml:"runtime_root"`
}

// Config is an spfs installation's resolved settings: where its local
// storage lives, and the remotes it can sync against.
type Config struct {
	Storage Storage           `yaml:"storage"`
	Remotes map[string]Remote `yaml:"remotes,omitempty"`
}

// defaultStorageRoot is used when no config file sets storage.root.
const defaultStorageRoot = "~/.local/share/spfs"

// defaultRuntimeRoot is used when no config file sets storage.runtime_root.
const defaultRuntimeRoot = "~/.local/share/spfs/runtimes"

// Default returns a Config with the built-in defaults, before any file or
// override is applied.
func Default() Config {
	return Config{
		Storage: Storage{
			Root:        defaultStorageRoot,
			RuntimeRoot: defaultRuntimeRoot,
		},
	}
}

// DefaultPaths are the locations Load reads from, in order, each
// overlaying the last. A missing file is skipped, not an error.
func DefaultPaths() []string {
	paths := []string{"/etc/spfs/spfs.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "spfs", "spfs.yaml"))
	}
	return paths
}

// Load reads and merges the configuration files at paths, in order, over
// the built-in defaults. Later files override earlier ones field by field;
// a path that does not exist is silently skipped.
func Load(paths ...string) (Config, error) {
	cfg := Default()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Config{}, spfserrors.Io("read "+p, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, spfserrors.Io("parse "+p, err)
		}
	}
	return cfg, nil
}

// LoadDefault loads configuration from DefaultPaths().
func LoadDefault() (Config, error) {
	return Load(DefaultPaths()...)
}

// StorageRoot returns the local repository's root, with a leading "~"
// expanded to the current user's home directory.
func (c Config) StorageRoot() (string, error) {
	return expandHome(c.Storage.Root)
}

// RuntimeStorageRoot returns the runtime storage root, with a leading "~"
// expanded to the current user's home directory.
func (c Config) RuntimeStorageRoot() (string, error) {
	return expandHome(c.Storage.RuntimeRoot)
}

func expandHome(path string) (string, error) {
	if path != "~" && !hasHomePrefix(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", spfserrors.Io("home dir", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

func hasHomePrefix(path string) bool {
	return len(path) >= 2 && path[0] == '~' && os.IsPathSeparator(path[1])
}

// ListRemoteNames returns the configured remote names, unordered.
func (c Config) ListRemoteNames() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	return names
}

// GetRepository opens (creating it if necessary) the local repository.
func (c Config) GetRepository() (*storage.Repository, error) {
	root, err := c.StorageRoot()
	if err != nil {
		return nil, err
	}
	return fs.Open(root, true)
}

// GetRuntimeStorage returns the runtime.Storage for this configuration's
// runtime root.
func (c Config) GetRuntimeStorage() (*runtime.Storage, error) {
	root, err := c.RuntimeStorageRoot()
	if err != nil {
		return nil, err
	}
	return runtime.NewStorage(root)
}

// GetRemote resolves nameOrAddress to a repository: first as the name of a
// configured remote, falling back to treating it as a literal address.
// Only the "file://"/bare-path scheme is currently supported; a remote
// whose address names another scheme (e.g. "s3://") fails until that
// backend is wired in.
func (c Config) GetRemote(nameOrAddress string) (*storage.Repository, error) {
	addr := nameOrAddress
	if remote, ok := c.Remotes[nameOrAddress]; ok {
		addr = remote.Address
	}
	return fs.Open(addr, false)
}
