package fs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
)

// CurrentVersion is the on-disk repository format version this build
// writes into a freshly created repository's VERSION file.
const CurrentVersion = "1.0.0"

// MinimumCompatibleVersion is the oldest on-disk repository format this
// build can read without a migration.
const MinimumCompatibleVersion = "1.0.0"

const versionFileName = "VERSION"

// Open opens (or, if create is true, initializes) a filesystem repository
// rooted at addr, which may be a bare path or a "file://" URL.
func Open(addr string, create bool) (*storage.Repository, error) {
	root := stripFileScheme(addr)
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}

	exists, err := dirExists(abs)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !create {
			return nil, spfserrors.Io("open", os.ErrNotExist)
		}
		if err := makedirsWithPerms(abs, defaultDirPerm); err != nil {
			return nil, err
		}
	}

	empty, err := dirEmpty(abs)
	if err != nil {
		return nil, err
	}
	if empty {
		if err := writeVersion(abs, CurrentVersion); err != nil {
			return nil, err
		}
	}

	found, err := readVersion(abs)
	if err != nil {
		return nil, err
	}
	if compareVersions(found, CurrentVersion) > 0 {
		return nil, spfserrors.MigrationRequiredError{Found: found, Wanted: CurrentVersion}
	}
	if compareVersions(found, MinimumCompatibleVersion) < 0 {
		return nil, spfserrors.MigrationRequiredError{Found: found, Wanted: MinimumCompatibleVersion}
	}

	objects, err := NewDatabase(filepath.Join(abs, "objects"))
	if err != nil {
		return nil, err
	}
	payloads, err := NewPayloadStorage(filepath.Join(abs, "payloads"))
	if err != nil {
		return nil, err
	}
	tags, err := NewTagStorage(filepath.Join(abs, "tags"))
	if err != nil {
		return nil, err
	}
	renderer, err := NewRenderer(filepath.Join(abs, "renders"), payloads)
	if err != nil {
		return nil, err
	}

	return storage.NewRepository("file://"+abs, tags, objects, payloads, renderer), nil
}

func stripFileScheme(addr string) string {
	switch {
	case strings.HasPrefix(addr, "file:///"):
		return addr[len("file://"):]
	case strings.HasPrefix(addr, "file:"):
		return addr[len("file:"):]
	default:
		return addr
	}
}

func dirExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, spfserrors.Io("stat "+path, err)
	}
	return true, nil
}

func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, spfserrors.Io("readdir "+path, err)
	}
	return len(entries) == 0, nil
}

func readVersion(root string) (string, error) {
	path := filepath.Join(root, versionFileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// predates the introduction of the VERSION file.
		return "0.0.0", nil
	}
	if err != nil {
		return "", spfserrors.Io("read "+path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func writeVersion(root, version string) error {
	path := filepath.Join(root, versionFileName)
	if err := os.WriteFile(path, []byte(version), 0o644); err != nil {
		return spfserrors.Io("write "+path, err)
	}
	os.Chmod(path, 0o666)
	return nil
}

// compareVersions compares two "major.minor.patch" strings, returning -1,
// 0, or 1. Each component defaults to 0 if missing or non-numeric; this
// repository format uses simple three-part versions, so no ecosystem
// semver parser pulls its weight here.
func compareVersions(a, b string) int {
	as, bs := strings.SplitN(a, ".", 3), strings.SplitN(b, ".", 3)
	for i := 0; i < 3; i++ {
		av, bv := versionPart(as, i), versionPart(bs, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return v
}
