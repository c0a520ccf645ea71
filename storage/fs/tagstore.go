package fs

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/tracking"
)

const tagExt = ".tag"

// TagStorage is an append-only store of per-name Tag streams, each
// persisted as a single file of length-prefixed encoded Tag records.
type TagStorage struct {
	root string
}

// NewTagStorage returns a TagStorage rooted at root.
func NewTagStorage(root string) (*TagStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, spfserrors.Io("abs", err)
	}
	return &TagStorage{root: abs}, nil
}

func (s *TagStorage) streamPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name)+tagExt)
}

// ListTagPaths lists the tag names and tag-directory segments found
// directly under prefix, with any ".tag" suffix stripped and duplicates
// removed.
func (s *TagStorage) ListTagPaths(ctx context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(prefix, "/")))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), tagExt)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// IterStreamNames returns the tag-spec path of every stream file under root.
func (s *TagStorage) IterStreamNames(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, tagExt) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(strings.TrimSuffix(rel, tagExt)))
		return nil
	})
	if err != nil {
		return nil, spfserrors.Io("walk "+s.root, err)
	}
	sort.Strings(names)
	return names, nil
}

// ReadTagStream returns every record of name's stream, newest first.
func (s *TagStorage) ReadTagStream(ctx context.Context, name string) ([]tracking.Tag, error) {
	path := s.streamPath(name)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, spfserrors.UnknownReferenceError{Ref: name}
	}
	if err != nil {
		return nil, spfserrors.Io("open "+path, err)
	}
	defer f.Close()

	var sizes []uint64
	for {
		// Limit each size read to its own 8 bytes so no buffering runs
		// ahead of the Seek below.
		size, rerr := encoding.NewReader(io.LimitReader(f, encoding.IntSize)).ReadInt()
		if rerr != nil {
			break
		}
		if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, spfserrors.Io("seek "+path, err)
		}
		sizes = append(sizes, size)
	}

	tags := make([]tracking.Tag, 0, len(sizes))
	offset := int64(0)
	for _, size := range sizes {
		offset += encoding.IntSize + int64(size)
	}
	cursor := offset
	for i := len(sizes) - 1; i >= 0; i-- {
		size := sizes[i]
		cursor -= int64(size)
		if _, err := f.Seek(cursor, io.SeekStart); err != nil {
			return nil, spfserrors.Io("seek "+path, err)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, spfserrors.Io("read "+path, err)
		}
		tag, err := tracking.DecodeTag(encoding.NewReader(bytes.NewReader(buf)))
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
		cursor -= encoding.IntSize
	}
	return tags, nil
}

// ResolveTag resolves a TagSpec to its Tag record.
func (s *TagStorage) ResolveTag(ctx context.Context, spec tracking.TagSpec) (tracking.Tag, error) {
	stream, err := s.ReadTagStream(ctx, spec.Path())
	if err != nil {
		return tracking.Tag{}, err
	}
	if spec.Version < 0 || spec.Version >= len(stream) {
		return tracking.Tag{}, spfserrors.UnknownReferenceError{Ref: spec.String()}
	}
	return stream[spec.Version], nil
}

// FindTags returns every TagSpec whose target equals digest, across every
// stream in the store. This is O(n) in the number of tag records.
func (s *TagStorage) FindTags(ctx context.Context, digest encoding.Digest) ([]tracking.TagSpec, error) {
	names, err := s.IterStreamNames(ctx)
	if err != nil {
		return nil, err
	}
	var found []tracking.TagSpec
	for _, name := range names {
		stream, err := s.ReadTagStream(ctx, name)
		if err != nil {
			return nil, err
		}
		for i, tag := range stream {
			if tag.Target != digest {
				continue
			}
			spec, err := tracking.BuildTagSpec(tag.Org, tag.Name, i)
			if err != nil {
				return nil, err
			}
			found = append(found, spec)
		}
	}
	return found, nil
}

// PushTag appends target as name's new head, unless the current head
// already points at target, in which case the existing head is returned
// unchanged.
func (s *TagStorage) PushTag(ctx context.Context, name string, target encoding.Digest) (tracking.Tag, error) {
	spec, err := tracking.ParseTagSpec(name)
	if err != nil {
		return tracking.Tag{}, err
	}

	parentRef := encoding.NullDigest
	if current, err := s.ResolveTag(ctx, tracking.TagSpec{Org: spec.Org, Name: spec.Name}); err == nil {
		if current.Target == target {
			return current, nil
		}
		parentRef, err = current.Digest()
		if err != nil {
			return tracking.Tag{}, err
		}
	}

	newTag, err := tracking.NewTag(spec.Org, spec.Name, target)
	if err != nil {
		return tracking.Tag{}, err
	}
	newTag.Parent = parentRef
	if err := s.PushRawTag(ctx, newTag); err != nil {
		return tracking.Tag{}, err
	}
	return newTag, nil
}

// PushRawTag appends tag verbatim to its stream, regardless of whether it
// is a sensible successor to the current head.
func (s *TagStorage) PushRawTag(ctx context.Context, tag tracking.Tag) error {
	path := s.streamPath(tag.Path())
	if err := makedirsWithPerms(filepath.Dir(path), defaultDirPerm); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tag.Encode(encoding.NewWriter(&buf)); err != nil {
		return err
	}

	unlock, err := lockStream(path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o777)
	if err != nil {
		return spfserrors.Io("open "+path, err)
	}
	defer f.Close()

	w := encoding.NewWriter(f)
	if err := w.WriteInt(uint64(buf.Len())); err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return spfserrors.Io("write "+path, err)
	}
	return nil
}

// RemoveTagStream deletes name's entire history.
func (s *TagStorage) RemoveTagStream(ctx context.Context, name string) error {
	path := s.streamPath(name)
	unlock, err := lockStream(path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return spfserrors.UnknownReferenceError{Ref: name}
		}
		return spfserrors.Io("remove "+path, err)
	}
	os.Remove(filepath.Dir(path)) // best effort, only succeeds if now empty
	return nil
}

// RemoveTag removes the single identified record from its stream, leaving
// the rest of the history intact.
func (s *TagStorage) RemoveTag(ctx context.Context, tag tracking.Tag) error {
	path := s.streamPath(tag.Path())

	unlock, err := lockStream(path)
	if err != nil {
		return err
	}
	defer unlock()

	all, err := s.readTagStreamLocked(path)
	if err != nil {
		return err
	}

	backup := path + ".backup"
	if err := os.Rename(path, backup); err != nil {
		return spfserrors.Io("rename "+path, err)
	}

	target, err := tag.Digest()
	if err != nil {
		os.Rename(backup, path)
		return err
	}

	for _, old := range all {
		oldDigest, err := old.Digest()
		if err == nil && oldDigest == target {
			continue
		}
		if err := s.pushRawTagLocked(path, old); err != nil {
			os.Remove(path)
			os.Rename(backup, path)
			return err
		}
	}
	os.Remove(backup)
	return nil
}

func (s *TagStorage) readTagStreamLocked(path string) ([]tracking.Tag, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, spfserrors.UnknownReferenceError{Ref: path}
	}
	if err != nil {
		return nil, spfserrors.Io("open "+path, err)
	}
	defer f.Close()

	var tags []tracking.Tag
	for {
		size, rerr := encoding.NewReader(io.LimitReader(f, encoding.IntSize)).ReadInt()
		if rerr != nil {
			break
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, spfserrors.Io("read "+path, err)
		}
		tag, err := tracking.DecodeTag(encoding.NewReader(bytes.NewReader(buf)))
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (s *TagStorage) pushRawTagLocked(path string, tag tracking.Tag) error {
	var buf bytes.Buffer
	if err := tag.Encode(encoding.NewWriter(&buf)); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o777)
	if err != nil {
		return spfserrors.Io("open "+path, err)
	}
	defer f.Close()
	w := encoding.NewWriter(f)
	if err := w.WriteInt(uint64(buf.Len())); err != nil {
		return err
	}
	_, err = f.Write(buf.Bytes())
	return spfserrors.Io("write "+path, err)
}

// lockStream acquires an exclusive lockfile beside path, returning a
// release function. It fails with TagAlreadyLockedError if the lockfile
// already exists.
func lockStream(path string) (func(), error) {
	if err := makedirsWithPerms(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, err
	}
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return nil, spfserrors.TagAlreadyLockedError{Name: path}
	}
	if err != nil {
		return nil, spfserrors.Io("lock "+path, err)
	}
	f.Close()
	return func() { os.Remove(lockPath) }, nil
}
