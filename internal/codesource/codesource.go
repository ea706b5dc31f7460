// Package codesource prepares the code root a runner executes from. The code
// is either already on disk or fetched from an S3 compatible bucket first.
package codesource

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scriptrunner/internal/config"
	"scriptrunner/internal/logger"
	"scriptrunner/internal/safeio"
)

// Open returns the code root described by cfg, downloading it first when an
// S3 bucket is configured.
func Open(ctx context.Context, cfg *config.Config, l *log.Logger) (*safeio.SafeFS, error) {
	l = logger.Component(l, "codesource")
	if cfg.S3.Enabled() {
		if err := os.MkdirAll(cfg.CodeDir, 0o755); err != nil {
			return nil, fmt.Errorf("create code dir: %w", err)
		}
		f, err := NewS3Fetcher(cfg.S3)
		if err != nil {
			return nil, err
		}
		n, err := f.Fetch(ctx, cfg.CodeDir)
		if err != nil {
			return nil, err
		}
		l.Info("code fetched", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix, "files", n)
	}
	fsys, err := safeio.NewSafeFS(cfg.CodeDir)
	if err != nil {
		return nil, fmt.Errorf("open code dir: %w", err)
	}
	return fsys, nil
}

// S3Fetcher copies every object under a prefix into a local directory.
type S3Fetcher struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Fetcher(cfg config.S3Config) (*S3Fetcher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	opts := &minio.Options{Secure: cfg.UseSSL, Region: region}
	if access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey); access != "" {
		opts.Creds = credentials.NewStaticV4(access, secret, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Fetcher{client: client, bucket: bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Fetch downloads the objects into dir and returns how many were written.
func (f *S3Fetcher) Fetch(ctx context.Context, dir string) (int, error) {
	listPrefix := ""
	if f.prefix != "" {
		listPrefix = f.prefix + "/"
	}
	n := 0
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return n, fmt.Errorf("list s3://%s/%s: %w", f.bucket, listPrefix, obj.Err)
		}
		dst, ok, err := localPath(dir, listPrefix, obj.Key)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if err := f.client.FGetObject(ctx, f.bucket, obj.Key, dst, minio.GetObjectOptions{}); err != nil {
			return n, fmt.Errorf("get s3://%s/%s: %w", f.bucket, obj.Key, err)
		}
		n++
	}
	return n, nil
}

// localPath maps an object key to a file under dir. Directory markers are
// skipped; keys escaping dir are rejected.
func localPath(dir, prefix, key string) (string, bool, error) {
	rel := strings.TrimPrefix(key, prefix)
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", false, nil
	}
	clean, err := safeio.Clean(rel)
	if err != nil {
		return "", false, fmt.Errorf("object %s: %w", key, err)
	}
	if clean == "." || path.IsAbs(clean) {
		return "", false, nil
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), true, nil
}
