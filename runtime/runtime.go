// Package runtime manages the on-disk state of active spfs environments:
// each Runtime tracks a stack of committed digests to mount, an editable
// flag, and the working directory overlaid on top of that stack.
package runtime

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
)

const (
	configFileName     = "config.json"
	shStartupFileName  = "startup.sh"
	cshStartupFileName = "startup.csh"
	upperDirName       = "upper"
)

// Config is the persisted state of a single runtime: its layer stack,
// bottom to top, and whether its upper dir currently accepts writes.
type Config struct {
	Stack    []encoding.Digest `json:"stack"`
	Editable bool              `json:"editable"`
}

type configJSON struct {
	Stack    []string `json:"stack"`
	Editable bool     `json:"editable"`
}

func (c Config) marshal() ([]byte, error) {
	raw := configJSON{Stack: make([]string, len(c.Stack)), Editable: c.Editable}
	for i, d := range c.Stack {
		raw.Stack[i] = d.String()
	}
	return json.Marshal(raw)
}

func unmarshalConfig(data []byte) (Config, error) {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, spfserrors.Io("unmarshal config", err)
	}
	cfg := Config{Stack: make([]encoding.Digest, 0, len(raw.Stack)), Editable: raw.Editable}
	for _, s := range raw.Stack {
		d, err := encoding.ParseDigest(s)
		if err != nil {
			return Config{}, err
		}
		cfg.Stack = append(cfg.Stack, d)
	}
	return cfg, nil
}

// Runtime represents a single active (or previously active) spfs session:
// its root directory holds a JSON config file, shell startup scripts, and
// the upper directory of its overlay.
type Runtime struct {
	root string
}

// New returns a Runtime rooted at root, creating root (mode 0777) if it
// does not already exist.
func New(root string) (*Runtime, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}
	if err := os.MkdirAll(abs, 0o777); err != nil {
		return nil, spfserrors.Io("mkdir "+abs, err)
	}
	os.Chmod(abs, 0o777)
	return &Runtime{root: abs}, nil
}

// Ref returns the runtime's identifier: its root directory's base name.
func (r *Runtime) Ref() string {
	return filepath.Base(r.root)
}

// Root returns the runtime's root directory.
func (r *Runtime) Root() string {
	return r.root
}

// UpperDir returns the writable overlay directory laid on top of the
// runtime's stack.
func (r *Runtime) UpperDir() string {
	return filepath.Join(r.root, upperDirName)
}

func (r *Runtime) configPath() string {
	return filepath.Join(r.root, configFileName)
}

// ShStartupFile returns the path of the bourne-shell startup script this
// runtime was seeded with.
func (r *Runtime) ShStartupFile() string {
	return filepath.Join(r.root, shStartupFileName)
}

// CshStartupFile returns the path of the c-shell startup script this
// runtime was seeded with.
func (r *Runtime) CshStartupFile() string {
	return filepath.Join(r.root, cshStartupFileName)
}

func (r *Runtime) readConfig() (Config, error) {
	data, err := os.ReadFile(r.configPath())
	if os.IsNotExist(err) {
		cfg := Config{}
		return cfg, r.writeConfig(cfg)
	}
	if err != nil {
		return Config{}, spfserrors.Io("read config", err)
	}
	return unmarshalConfig(data)
}

func (r *Runtime) writeConfig(cfg Config) error {
	data, err := cfg.marshal()
	if err != nil {
		return spfserrors.Io("marshal config", err)
	}
	if err := os.WriteFile(r.configPath(), data, 0o644); err != nil {
		return spfserrors.Io("write config", err)
	}
	return nil
}

// GetStack returns the runtime's current layer/platform digest stack,
// bottom to top.
func (r *Runtime) GetStack() ([]encoding.Digest, error) {
	cfg, err := r.readConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Stack, nil
}

// PushDigest pushes digest onto the top of the runtime's stack — per
// spec.md, later pushes sit higher and take priority when layers overlap.
func (r *Runtime) PushDigest(digest encoding.Digest) error {
	cfg, err := r.readConfig()
	if err != nil {
		return err
	}
	cfg.Stack = append(cfg.Stack, digest)
	return r.writeConfig(cfg)
}

// ResetStack clears the runtime's stack and editable flag back to defaults.
func (r *Runtime) ResetStack() error {
	return r.writeConfig(Config{})
}

// IsEditable reports whether the runtime currently accepts writes.
func (r *Runtime) IsEditable() (bool, error) {
	cfg, err := r.readConfig()
	if err != nil {
		return false, err
	}
	return cfg.Editable, nil
}

// SetEditable updates the runtime's editable flag.
func (r *Runtime) SetEditable(editable bool) error {
	cfg, err := r.readConfig()
	if err != nil {
		return err
	}
	cfg.Editable = editable
	return r.writeConfig(cfg)
}

// IsDirty reports whether the runtime's upper dir contains any changes.
func (r *Runtime) IsDirty() (bool, error) {
	entries, err := os.ReadDir(r.UpperDir())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, spfserrors.Io("readdir upper", err)
	}
	return len(entries) > 0, nil
}

// Reset removes working changes from the upper dir that match any of the
// given shell glob patterns (as matched against the absolute in-runtime
// path, e.g. "/etc/*"). With no patterns given, every change is removed.
func (r *Runtime) Reset(patterns ...string) error {
	if len(patterns) == 0 {
		patterns = []string{"/*"}
	}
	upper := r.UpperDir()
	return filepath.WalkDir(upper, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if p == upper {
			return nil
		}
		rel, err := filepath.Rel(upper, p)
		if err != nil {
			return err
		}
		runPath := path.Join("/", filepath.ToSlash(rel))
		for _, pattern := range patterns {
			matched, err := path.Match(pattern, runPath)
			if err != nil {
				return spfserrors.Io("match pattern", err)
			}
			if !matched {
				continue
			}
			if d.IsDir() {
				if rerr := os.RemoveAll(p); rerr != nil {
					return spfserrors.Io("remove "+p, rerr)
				}
				return filepath.SkipDir
			}
			if rerr := os.Remove(p); rerr != nil {
				return spfserrors.Io("remove "+p, rerr)
			}
			return nil
		}
		return nil
	})
}

// Delete removes all data belonging to this runtime.
func (r *Runtime) Delete() error {
	if err := os.RemoveAll(r.root); err != nil {
		return spfserrors.Io("remove "+r.root, err)
	}
	return nil
}
