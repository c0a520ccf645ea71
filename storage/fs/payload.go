// Package fs implements the storage capability interfaces (PayloadStorage,
// TagStorage, ManifestViewer, the object graph.Database, and the composite
// storage.Repository) against a local filesystem directory tree.
package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/logging"
	"github.com/spfs-io/spfs/spfserrors"
)

const (
	defaultDirPerm  os.FileMode = 0o777
	defaultFilePerm os.FileMode = 0o444
)

// PayloadStorage stores raw byte payloads under root, sharded by the first
// two characters of each payload's hex... rather, base32 digest string, one
// subdirectory per shard.
type PayloadStorage struct {
	root string
}

// NewPayloadStorage returns a PayloadStorage rooted at root. The directory
// is not created here; it is created lazily as payloads are written.
func NewPayloadStorage(root string) (*PayloadStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}
	return &PayloadStorage{root: abs}, nil
}

// Root returns the storage's root directory.
func (s *PayloadStorage) Root() string {
	return s.root
}

func (s *PayloadStorage) digestPath(d encoding.Digest) string {
	str := d.String()
	return filepath.Join(s.root, str[:2], str[2:])
}

// IterDigests lists every payload digest present in the store.
func (s *PayloadStorage) IterDigests(ctx context.Context) ([]encoding.Digest, error) {
	shards, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, spfserrors.Io("readdir "+s.root, err)
	}

	var digests []encoding.Digest
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, shard.Name()))
		if err != nil {
			return nil, spfserrors.Io("readdir "+shard.Name(), err)
		}
		for _, e := range entries {
			d, err := encoding.ParseDigest(shard.Name() + e.Name())
			if err != nil {
				continue
			}
			digests = append(digests, d)
		}
	}
	return digests, nil
}

// WritePayload streams r to a temporary file, hashing as it goes, then
// renames it into its sharded final position. Writing the same payload
// twice is safe: the second write's temp file is discarded once the digest
// is known to already exist.
func (s *PayloadStorage) WritePayload(ctx context.Context, r io.Reader) (encoding.Digest, error) {
	working := filepath.Join(s.root, uuid.New().String())
	if err := makedirsWithPerms(filepath.Dir(working), defaultDirPerm); err != nil {
		return encoding.Digest{}, err
	}

	f, err := os.OpenFile(working, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("create "+working, err)
	}

	hasher := encoding.NewHasher(nil)
	written, copyErr := io.Copy(io.MultiWriter(f, hasher), r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(working)
		return encoding.Digest{}, spfserrors.Io("write "+working, copyErr)
	}
	if closeErr != nil {
		os.Remove(working)
		return encoding.Digest{}, spfserrors.Io("close "+working, closeErr)
	}

	digest := hasher.Digest()
	final := s.digestPath(digest)
	if err := makedirsWithPerms(filepath.Dir(final), defaultDirPerm); err != nil {
		os.Remove(working)
		return encoding.Digest{}, err
	}
	if _, statErr := os.Stat(final); statErr == nil {
		os.Remove(working)
	} else if err := os.Rename(working, final); err != nil {
		os.Remove(working)
		if !os.IsExist(err) {
			return encoding.Digest{}, spfserrors.Io("rename "+working, err)
		}
	}
	if err := os.Chmod(final, defaultFilePerm); err != nil {
		logging.GetLogger(ctx).WithError(err).Warn("failed to set payload permissions")
	}
	payloadBytes.WithValues("write").Inc(float64(written))
	return digest, nil
}

// OpenPayload opens the payload identified by digest for reading.
func (s *PayloadStorage) OpenPayload(ctx context.Context, d encoding.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.digestPath(d))
	if os.IsNotExist(err) {
		return nil, spfserrors.UnknownObjectError{Digest: d.String()}
	}
	if err != nil {
		return nil, spfserrors.Io("open "+d.String(), err)
	}
	if info, statErr := f.Stat(); statErr == nil {
		payloadBytes.WithValues("read").Inc(float64(info.Size()))
	}
	return f, nil
}

// RemovePayload deletes the payload identified by digest.
func (s *PayloadStorage) RemovePayload(ctx context.Context, d encoding.Digest) error {
	err := os.Remove(s.digestPath(d))
	if os.IsNotExist(err) {
		return spfserrors.UnknownObjectError{Digest: d.String()}
	}
	if err != nil {
		return spfserrors.Io("remove "+d.String(), err)
	}
	return nil
}

// ResolveFullDigest expands a (possibly short) digest prefix to the single
// full digest it identifies, scoped to this store's shard directory for
// efficiency.
func (s *PayloadStorage) ResolveFullDigest(ctx context.Context, prefix string) (encoding.Digest, error) {
	if len(prefix) < 2 {
		return encoding.Digest{}, spfserrors.UnknownReferenceError{Ref: prefix}
	}
	shard, rest := prefix[:2], prefix[2:]
	dirpath := filepath.Join(s.root, shard)

	const fullDigestStrLen = 52 // base32, no padding, of a 32-byte digest
	if len(prefix) >= fullDigestStrLen {
		if d, err := encoding.ParseDigest(prefix); err == nil {
			if _, statErr := os.Stat(filepath.Join(dirpath, rest)); statErr == nil {
				return d, nil
			}
		}
	}

	entries, err := os.ReadDir(dirpath)
	if os.IsNotExist(err) {
		return encoding.Digest{}, spfserrors.UnknownReferenceError{Ref: prefix}
	}
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("readdir "+dirpath, err)
	}

	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), rest) {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return encoding.Digest{}, spfserrors.UnknownReferenceError{Ref: prefix}
	case 1:
		return encoding.ParseDigest(shard + matches[0])
	default:
		full := make([]string, len(matches))
		for i, m := range matches {
			full[i] = shard + m
		}
		return encoding.Digest{}, spfserrors.AmbiguousReferenceError{Ref: prefix, Matches: full}
	}
}

// makedirsWithPerms recursively creates dirname, chmod-ing each newly
// created segment to perms (best effort — a failed chmod is not fatal).
func makedirsWithPerms(dirname string, perms os.FileMode) error {
	if dirname == "" || dirname == string(filepath.Separator) {
		return nil
	}
	if _, err := os.Stat(dirname); err == nil {
		return nil
	}
	if err := makedirsWithPerms(filepath.Dir(dirname), perms); err != nil {
		return err
	}
	if err := os.Mkdir(dirname, 0o777); err != nil && !os.IsExist(err) {
		return spfserrors.Io("mkdir "+dirname, err)
	}
	_ = os.Chmod(dirname, perms)
	return nil
}
