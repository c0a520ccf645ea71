package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/spfserrors"
)

// Database is a graph.Database persisted as individual, digest-keyed S3
// objects under prefix.
type Database struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewDatabase returns a Database over client, storing objects in bucket
// under prefix.
func NewDatabase(client *s3.S3, bucket, prefix string) *Database {
	return &Database{client: client, bucket: bucket, prefix: prefix}
}

func (d *Database) key(digest encoding.Digest) string {
	return keyJoin(d.prefix, digest.String())
}

// ReadObject decodes the object stored at digest.
func (d *Database) ReadObject(digest encoding.Digest) (graph.Object, error) {
	ctx := context.Background()
	out, err := d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(digest)),
	})
	if isNotFound(err) {
		return nil, spfserrors.UnknownObjectError{Digest: digest.String()}
	}
	if err != nil {
		return nil, spfserrors.Io("get "+d.key(digest), err)
	}
	defer out.Body.Close()

	raw, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, spfserrors.Io("read "+d.key(digest), err)
	}
	return graph.DecodeObject(encoding.NewReader(bytes.NewReader(raw)))
}

// HasObject reports whether digest identifies a stored object.
func (d *Database) HasObject(digest encoding.Digest) bool {
	return graph.HasObject(d, digest)
}

// WriteObject encodes obj and uploads it to its digest-keyed object.
// Objects are immutable and content-addressed, so an existing object at
// the same key is left untouched rather than overwritten.
func (d *Database) WriteObject(obj graph.Object) error {
	digest, err := objectDigest(obj)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if d.HasObject(digest) {
		return nil
	}

	var buf bytes.Buffer
	if err := graph.EncodeObject(encoding.NewWriter(&buf), obj); err != nil {
		return err
	}

	_, err = d.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key(digest)),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return spfserrors.Io("put "+d.key(digest), err)
	}
	return nil
}

// RemoveObject deletes the object stored at digest.
func (d *Database) RemoveObject(digest encoding.Digest) error {
	ctx := context.Background()
	if _, err := d.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(digest)),
	}); isNotFound(err) {
		return spfserrors.UnknownObjectError{Digest: digest.String()}
	}
	_, err := d.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(digest)),
	})
	if err != nil {
		return spfserrors.Io("delete "+d.key(digest), err)
	}
	return nil
}

// IterDigests lists the digest of every stored object.
func (d *Database) IterDigests() ([]encoding.Digest, error) {
	ctx := context.Background()
	var digests []encoding.Digest
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.prefix + "/"),
	}
	err := d.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), d.prefix+"/")
			if digest, err := encoding.ParseDigest(name); err == nil {
				digests = append(digests, digest)
			}
		}
		return true
	})
	if err != nil {
		return nil, spfserrors.Io("list "+d.prefix, err)
	}
	return digests, nil
}

// IterObjects decodes and returns every stored object.
func (d *Database) IterObjects() ([]graph.Object, error) {
	digests, err := d.IterDigests()
	if err != nil {
		return nil, err
	}
	objs := make([]graph.Object, 0, len(digests))
	for _, digest := range digests {
		obj, err := d.ReadObject(digest)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// WalkObjects performs a breadth-first traversal from root.
func (d *Database) WalkObjects(root encoding.Digest) ([]graph.Object, error) {
	return graph.WalkObjects(d, root)
}

// ResolveFullDigest expands a short digest prefix against this database's
// stored objects.
func (d *Database) ResolveFullDigest(prefix string) (encoding.Digest, error) {
	ctx := context.Background()
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(keyJoin(d.prefix, prefix)),
	}
	var matches []string
	err := d.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			matches = append(matches, strings.TrimPrefix(aws.StringValue(obj.Key), d.prefix+"/"))
		}
		return true
	})
	if err != nil {
		return encoding.Digest{}, spfserrors.Io("list "+prefix, err)
	}
	switch len(matches) {
	case 0:
		return encoding.Digest{}, spfserrors.UnknownReferenceError{Ref: prefix}
	case 1:
		return encoding.ParseDigest(matches[0])
	default:
		return encoding.Digest{}, spfserrors.AmbiguousReferenceError{Ref: prefix, Matches: matches}
	}
}

func objectDigest(obj graph.Object) (encoding.Digest, error) {
	if b, ok := obj.(interface{ Digest() encoding.Digest }); ok {
		return b.Digest(), nil
	}
	return graph.DigestOfObject(obj)
}
