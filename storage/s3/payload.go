package s3

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/spfserrors"
)

// PayloadStorage stores raw byte payloads as individual S3 objects, keyed
// by digest under prefix. Unlike storage/fs's sharded directory tree, S3
// keys need no sharding for filesystem performance, but payloads are still
// grouped under a shared prefix so ListObjectsV2 can enumerate them and so
// one bucket can host more than a payload store alongside a tag/object
// store at sibling prefixes.
type PayloadStorage struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewPayloadStorage returns a PayloadStorage over client, writing objects
// to bucket under prefix.
func NewPayloadStorage(client *s3.S3, bucket, prefix string) *PayloadStorage {
	return &PayloadStorage{client: client, bucket: bucket, prefix: prefix}
}

func (s *PayloadStorage) key(d encoding.Digest) string {
	return keyJoin(s.prefix, d.String())
}

// WritePayload buffers r to a temporary file while hashing it, then
// uploads it to its digest-keyed object. The SDK's retrying PutObject
// call requires a seekable body, hence the temp file rather than an
// in-memory buffer for potentially large payloads.
func (s *PayloadStorage) WritePayload(ctx context.Context, r io.Reader) (encoding.Digest, error) {
	tmp, err := ioutil.TempFile("", "spfs-payload-*")
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("create temp file", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	hasher := encoding.NewHasher(nil)
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("buffer payload", err)
	}
	digest := hasher.Digest()

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return encoding.Digest{}, spfserrors.Io("seek temp file", err)
	}

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(digest)),
		Body:          tmp,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("put "+s.key(digest), err)
	}
	return digest, nil
}

// OpenPayload opens the payload identified by digest for reading.
func (s *PayloadStorage) OpenPayload(ctx context.Context, d encoding.Digest) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	})
	if isNotFound(err) {
		return nil, spfserrors.UnknownObjectError{Digest: d.String()}
	}
	if err != nil {
		return nil, spfserrors.Io("get "+s.key(d), err)
	}
	return out.Body, nil
}

// RemovePayload deletes the payload identified by digest.
func (s *PayloadStorage) RemovePayload(ctx context.Context, d encoding.Digest) error {
	if _, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	}); isNotFound(err) {
		return spfserrors.UnknownObjectError{Digest: d.String()}
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	})
	if err != nil {
		return spfserrors.Io("delete "+s.key(d), err)
	}
	return nil
}

// IterDigests lists every payload digest present under prefix, paging
// through ListObjectsV2 the way the teacher's s3-aws driver pages List and
// Walk results.
func (s *PayloadStorage) IterDigests(ctx context.Context) ([]encoding.Digest, error) {
	var digests []encoding.Digest
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "/"),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix+"/")
			if d, err := encoding.ParseDigest(name); err == nil {
				digests = append(digests, d)
			}
		}
		return true
	})
	if err != nil {
		return nil, spfserrors.Io("list "+s.prefix, err)
	}
	return digests, nil
}

// ResolveFullDigest expands a (possibly short) digest prefix by listing
// every key sharing it.
func (s *PayloadStorage) ResolveFullDigest(ctx context.Context, prefix string) (encoding.Digest, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyJoin(s.prefix, prefix)),
	}
	var matches []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix+"/")
			matches = append(matches, name)
		}
		return true
	})
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("list "+prefix, err)
	}

	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return encoding.Digest{}, spfserrors.UnknownReferenceError{Ref: prefix}
	case 1:
		return encoding.ParseDigest(matches[0])
	default:
		return encoding.Digest{}, spfserrors.AmbiguousReferenceError{Ref: prefix, Matches: matches}
	}
}
