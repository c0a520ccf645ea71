package runtime

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spfs-io/spfs/spfserrors"
)

// Storage manages the on-disk collection of runtimes under a single root
// directory, one subdirectory per runtime ref.
type Storage struct {
	root string
}

// NewStorage returns a Storage rooted at root.
func NewStorage(root string) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}
	return &Storage{root: abs}, nil
}

// CreateRuntime creates a new runtime. If ref is empty, a generated ref is
// used; CreateRuntime fails with RuntimeExistsError if ref is already in
// use.
func (s *Storage) CreateRuntime(ref string) (*Runtime, error) {
	if ref == "" {
		ref = uuid.New().String()
	}
	dir := filepath.Join(s.root, ref)
	if err := os.Mkdir(dir, 0o777); err != nil {
		if os.IsExist(err) {
			return nil, spfserrors.RuntimeExistsError{Ref: ref}
		}
		if os.IsNotExist(err) {
			if merr := os.MkdirAll(s.root, 0o777); merr != nil {
				return nil, spfserrors.Io("mkdir "+s.root, merr)
			}
			if merr := os.Mkdir(dir, 0o777); merr != nil {
				return nil, spfserrors.Io("mkdir "+dir, merr)
			}
		} else {
			return nil, spfserrors.Io("mkdir "+dir, err)
		}
	}

	rt, err := New(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(rt.UpperDir(), 0o777); err != nil {
		return nil, spfserrors.Io("mkdir upper", err)
	}
	if err := os.WriteFile(rt.ShStartupFile(), []byte(shStartupScript), 0o644); err != nil {
		return nil, spfserrors.Io("write sh startup", err)
	}
	if err := os.WriteFile(rt.CshStartupFile(), []byte(cshStartupScript), 0o644); err != nil {
		return nil, spfserrors.Io("write csh startup", err)
	}
	return rt, nil
}

// ReadRuntime accesses an existing runtime by ref.
func (s *Storage) ReadRuntime(ref string) (*Runtime, error) {
	dir := filepath.Join(s.root, ref)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, spfserrors.UnknownReferenceError{Ref: ref}
	}
	return New(dir)
}

// RemoveRuntime deletes ref's runtime entirely.
func (s *Storage) RemoveRuntime(ref string) error {
	rt, err := s.ReadRuntime(ref)
	if err != nil {
		return err
	}
	return rt.Delete()
}

// ListRuntimes returns every runtime currently stored.
func (s *Storage) ListRuntimes() ([]*Runtime, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, spfserrors.Io("readdir "+s.root, err)
	}
	runtimes := make([]*Runtime, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rt, err := New(filepath.Join(s.root, e.Name()))
		if err != nil {
			return nil, err
		}
		runtimes = append(runtimes, rt)
	}
	return runtimes, nil
}
