package s3

import (
	"bytes"
	"context"
	"encoding/binary"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/tracking"
)

const tagKeySuffix = ".tag"

// TagStorage is an append-only store of per-name Tag streams, each
// persisted as a single S3 object of length-prefixed encoded Tag records,
// the same on-disk record format storage/fs uses. S3 has no atomic append,
// so PushTag/PushRawTag read the whole stream, append in memory, and
// PutObject the result back — a read-modify-write race under concurrent
// writers to the same name, inherent to S3's key-value object model rather
// than something this package works around.
type TagStorage struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewTagStorage returns a TagStorage over client, storing streams in
// bucket under prefix.
func NewTagStorage(client *s3.S3, bucket, prefix string) *TagStorage {
	return &TagStorage{client: client, bucket: bucket, prefix: prefix}
}

func (s *TagStorage) streamKey(name string) string {
	return keyJoin(s.prefix, name+tagKeySuffix)
}

// ListTagPaths lists the tag names and tag-directory segments found
// directly under prefix.
func (s *TagStorage) ListTagPaths(ctx context.Context, prefix string) ([]string, error) {
	base := keyJoin(s.prefix, strings.TrimPrefix(prefix, "/"))
	if base != "" {
		base += "/"
	}
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(base),
		Delimiter: aws.String("/"),
	}
	seen := map[string]bool{}
	var out []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, p := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(p.Prefix), base), "/")
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(obj.Key), base), tagKeySuffix)
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		return true
	})
	if err != nil {
		return nil, nil
	}
	sort.Strings(out)
	return out, nil
}

// IterStreamNames returns the tag-spec path of every stream object under
// prefix.
func (s *TagStorage) IterStreamNames(ctx context.Context) ([]string, error) {
	var names []string
	base := s.prefix + "/"
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(base),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, tagKeySuffix) {
				continue
			}
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(key, base), tagKeySuffix))
		}
		return true
	})
	if err != nil {
		return nil, spfserrors.Io("list "+s.prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

// readStream returns every record of name's stream, oldest first.
func (s *TagStorage) readStream(ctx context.Context, name string) ([]tracking.Tag, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.streamKey(name)),
	})
	if isNotFound(err) {
		return nil, spfserrors.UnknownReferenceError{Ref: name}
	}
	if err != nil {
		return nil, spfserrors.Io("get "+s.streamKey(name), err)
	}
	defer out.Body.Close()

	raw, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, spfserrors.Io("read "+s.streamKey(name), err)
	}

	var tags []tracking.Tag
	offset := 0
	for offset+encoding.IntSize <= len(raw) {
		size := binary.BigEndian.Uint64(raw[offset : offset+encoding.IntSize])
		offset += encoding.IntSize
		if offset+int(size) > len(raw) {
			return nil, spfserrors.UnexpectedEOFError{Reason: "truncated tag stream " + name}
		}
		body := raw[offset : offset+int(size)]
		offset += int(size)

		tag, err := tracking.DecodeTag(encoding.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ReadTagStream returns every record of name's stream, newest first.
func (s *TagStorage) ReadTagStream(ctx context.Context, name string) ([]tracking.Tag, error) {
	tags, err := s.readStream(ctx, name)
	if err != nil {
		return nil, err
	}
	reversed := make([]tracking.Tag, len(tags))
	for i, tag := range tags {
		reversed[len(tags)-1-i] = tag
	}
	return reversed, nil
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
// stream in the store.
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
// already points at target.
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

// PushRawTag appends tag verbatim to its stream by reading the existing
// stream (if any), appending in memory, and writing the whole object back.
func (s *TagStorage) PushRawTag(ctx context.Context, tag tracking.Tag) error {
	existing, err := s.readStream(ctx, tag.Path())
	if err != nil {
		if _, ok := err.(spfserrors.UnknownReferenceError); !ok {
			return err
		}
		existing = nil
	}
	existing = append(existing, tag)
	return s.writeStream(ctx, tag.Path(), existing)
}

// RemoveTagStream deletes name's entire history.
func (s *TagStorage) RemoveTagStream(ctx context.Context, name string) error {
	if _, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.streamKey(name)),
	}); isNotFound(err) {
		return spfserrors.UnknownReferenceError{Ref: name}
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.streamKey(name)),
	})
	if err != nil {
		return spfserrors.Io("delete "+s.streamKey(name), err)
	}
	return nil
}

// RemoveTag removes the single identified record from its stream, leaving
// the rest of the history intact.
func (s *TagStorage) RemoveTag(ctx context.Context, tag tracking.Tag) error {
	all, err := s.readStream(ctx, tag.Path())
	if err != nil {
		return err
	}
	target, err := tag.Digest()
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, old := range all {
		if oldDigest, err := old.Digest(); err == nil && oldDigest == target {
			continue
		}
		kept = append(kept, old)
	}
	return s.writeStream(ctx, tag.Path(), kept)
}

func (s *TagStorage) writeStream(ctx context.Context, name string, tags []tracking.Tag) error {
	var buf bytes.Buffer
	w := encoding.NewWriter(&buf)
	for _, tag := range tags {
		var record bytes.Buffer
		if err := tag.Encode(encoding.NewWriter(&record)); err != nil {
			return err
		}
		if err := w.WriteInt(uint64(record.Len())); err != nil {
			return err
		}
		if _, err := buf.Write(record.Bytes()); err != nil {
			return spfserrors.Io("buffer "+name, err)
		}
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.streamKey(name)),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return spfserrors.Io("put "+s.streamKey(name), err)
	}
	return nil
}
