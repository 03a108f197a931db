// Package archive copies downloaded SQL artifacts into S3-compatible object
// storage, keyed by tenant and artifact filename.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Sink stores artifacts as objects. It satisfies workflow.Sink.
type Sink struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	mu    sync.Mutex
	ready bool
}

// New validates cfg and builds a client. No request is made until the first
// Save.
func New(cfg Config) (*Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}

	return &Sink{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// WithPrefix returns a sink writing under an extra key prefix, such as a
// tenant ID. The bucket check is shared with s.
func (s *Sink) WithPrefix(p string) *Scoped {
	return &Scoped{sink: s, prefix: strings.Trim(p, "/")}
}

// ensureBucket checks for the bucket once per process and creates it when
// missing. Only success is remembered; a failed check is retried on the
// next Save.
func (s *Sink) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// Save streams r into the bucket under the artifact's filename.
func (s *Sink) Save(ctx context.Context, filename string, r io.Reader) error {
	return s.put(ctx, "", filename, r)
}

func (s *Sink) put(ctx context.Context, scope, filename string, r io.Reader) error {
	key, err := ObjectKey(s.prefix, scope, filename)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	// Size -1 makes minio use a multipart upload for an unknown length.
	_, err = s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: "application/sql",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Scoped is a Sink bound to an extra key prefix.
type Scoped struct {
	sink   *Sink
	prefix string
}

func (s *Scoped) Save(ctx context.Context, filename string, r io.Reader) error {
	return s.sink.put(ctx, s.prefix, filename, r)
}

// ObjectKey joins the non-empty parts. The filename must be a single path
// element.
func ObjectKey(prefix, scope, filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" || filename == "." || filename == ".." || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("invalid artifact name %q", filename)
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, scope} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, filename)
	return path.Join(parts...), nil
}
