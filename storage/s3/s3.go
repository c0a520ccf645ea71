// Package s3 implements the storage capability interfaces (PayloadStorage,
// TagStorage, and the object graph.Database) against an Amazon S3 bucket,
// the same github.com/aws/aws-sdk-go client the teacher's
// registry/storage/driver/s3-aws driver uses. There is no ManifestViewer
// here: rendering a manifest to a directory tree of hard links is a local
// filesystem operation, so an s3 Repository always has a nil Renderer.
package s3

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
)

// Config carries the subset of the teacher s3-aws driver's DriverParameters
// relevant to a digest-addressed object/payload/tag store: there is no
// chunked multipart writer here, since every value written is either a
// small encoded record or a payload streamed in one PutObject call.
type Config struct {
	Bucket         string
	Region         string
	RegionEndpoint string
	AccessKey      string
	SecretKey      string
	SessionToken   string
	ForcePathStyle bool
	Secure         bool
	// Prefix roots every key this backend writes, so one bucket can host
	// more than one spfs repository.
	Prefix string
}

// ParseAddress parses an "s3://bucket/prefix?region=...&endpoint=..." style
// address into a Config. Credentials, when not given as query parameters,
// are left for the SDK's default credential chain (environment, shared
// config, instance role) to resolve.
func ParseAddress(address string) (Config, error) {
	u, err := url.Parse(address)
	if err != nil || u.Scheme != "s3" {
		return Config{}, spfserrors.InvalidDigestError{Value: address, Reason: "not an s3:// address"}
	}
	q := u.Query()
	cfg := Config{
		Bucket:         u.Host,
		Prefix:         strings.TrimPrefix(u.Path, "/"),
		Region:         q.Get("region"),
		RegionEndpoint: q.Get("endpoint"),
		AccessKey:      q.Get("access_key"),
		SecretKey:      q.Get("secret_key"),
		SessionToken:   q.Get("session_token"),
		Secure:         true,
	}
	if v := q.Get("force_path_style"); v != "" {
		cfg.ForcePathStyle, _ = strconv.ParseBool(v)
	}
	if v := q.Get("secure"); v != "" {
		cfg.Secure, _ = strconv.ParseBool(v)
	}
	if cfg.Bucket == "" {
		return Config{}, spfserrors.InvalidDigestError{Value: address, Reason: "missing bucket"}
	}
	return cfg, nil
}

func newClient(cfg Config) (*s3.S3, error) {
	awsConfig := aws.NewConfig()
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken))
	}
	if cfg.RegionEndpoint != "" {
		awsConfig.WithEndpoint(cfg.RegionEndpoint)
	}
	awsConfig.WithS3ForcePathStyle(cfg.ForcePathStyle)
	awsConfig.WithRegion(cfg.Region)
	awsConfig.WithDisableSSL(!cfg.Secure)
	if !cfg.Secure {
		awsConfig.WithHTTPClient(&http.Client{})
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, spfserrors.Io("s3 session", fmt.Errorf("failed to create aws session: %w", err))
	}
	return s3.New(sess), nil
}

// Open builds a *storage.Repository backed by an S3 bucket at address (an
// "s3://bucket/prefix" URL). The returned repository has no Renderer.
func Open(address string) (*storage.Repository, error) {
	cfg, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	payloads := NewPayloadStorage(client, cfg.Bucket, keyJoin(cfg.Prefix, "payloads"))
	objects := NewDatabase(client, cfg.Bucket, keyJoin(cfg.Prefix, "objects"))
	tags := NewTagStorage(client, cfg.Bucket, keyJoin(cfg.Prefix, "tags"))

	return storage.NewRepository(address, tags, objects, payloads, nil), nil
}

func keyJoin(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.Trim(p, "/"))
		}
	}
	return strings.Join(nonEmpty, "/")
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), s3.ErrCodeNoSuchKey) || strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "status code: 404")
}
