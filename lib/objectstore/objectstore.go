// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectstore uploads run artifacts to S3-compatible storage.
// The host invokes it after a container run finishes so durable copies
// of the audit logs, diffs, and summary exist outside the workspace.
package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes an S3-compatible endpoint and the bucket runs are
// uploaded to.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Validate reports the first missing required field.
func (config Config) Validate() error {
	switch {
	case config.Endpoint == "":
		return fmt.Errorf("object store endpoint is required")
	case config.AccessKey == "":
		return fmt.Errorf("object store access key is required")
	case config.SecretKey == "":
		return fmt.Errorf("object store secret key is required")
	case config.Bucket == "":
		return fmt.Errorf("object store bucket is required")
	}
	return nil
}

// Enabled reports whether an endpoint is configured at all. An empty
// config means uploads are skipped, not an error.
func (config Config) Enabled() bool {
	return config.Endpoint != ""
}

// client is the subset of the minio API the uploader needs. Narrowed
// for testing.
type client interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, key, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies run output directories into a bucket, one object per
// artifact, keyed by run identifier.
type Uploader struct {
	client client
	bucket string
	logger *slog.Logger
}

// New connects to the configured endpoint and returns an Uploader.
func New(config Config, logger *slog.Logger) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store %s: %w", config.Endpoint, err)
	}
	return newUploader(minioClient, config.Bucket, logger), nil
}

func newUploader(minioClient client, bucket string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: minioClient, bucket: bucket, logger: logger}
}

// EnsureBucket creates the configured bucket if it does not exist.
func (uploader *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := uploader.client.BucketExists(ctx, uploader.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", uploader.bucket, err)
	}
	if exists {
		return nil
	}
	if err := uploader.client.MakeBucket(ctx, uploader.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", uploader.bucket, err)
	}
	return nil
}

// SyncRun uploads every file under dir to runs/<runID>/<relative path>
// and returns the uploaded keys.
func (uploader *Uploader) SyncRun(ctx context.Context, runID, dir string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(dir, func(filePath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(dir, filePath)
		if err != nil {
			return err
		}
		key := path.Join("runs", runID, filepath.ToSlash(relative))
		opts := minio.PutObjectOptions{ContentType: contentType(relative)}
		if _, err := uploader.client.FPutObject(ctx, uploader.bucket, key, filePath, opts); err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
		keys = append(keys, key)
		uploader.logger.Debug("artifact uploaded", "bucket", uploader.bucket, "key", key)
		return nil
	})
	if err != nil {
		return keys, fmt.Errorf("syncing run %s: %w", runID, err)
	}
	return keys, nil
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".log"):
		return "application/x-ndjson"
	case strings.HasSuffix(name, ".tar.zst"):
		return "application/zstd"
	default:
		return "text/plain"
	}
}
