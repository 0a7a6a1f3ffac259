package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// ObjectStore is one bucket of the object store.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	EnsureBucket(ctx context.Context) error
}

// R2Bucket talks to a Cloudflare R2 (or any S3-compatible) bucket through minio-go.
type R2Bucket struct {
	client *minio.Client
	bucket string
}

func newMinioClient(cfg config.StorageConfig) (*minio.Client, error) {
	var creds *credentials.Credentials
	if cfg.AccessKey == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
}

func NewR2Bucket(cfg config.StorageConfig, bucket string) (*R2Bucket, error) {
	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &R2Bucket{client: client, bucket: bucket}, nil
}

// Buckets groups the three buckets the service writes to.
type Buckets struct {
	Images ObjectStore
	Media  ObjectStore
	Events ObjectStore
}

// OpenBuckets builds the buckets for the configured driver and makes sure they exist.
func OpenBuckets(ctx context.Context, cfg config.StorageConfig) (*Buckets, error) {
	if cfg.Driver == "memory" {
		logger.Warn("storage_memory_driver", map[string]interface{}{
			"reason": "STORAGE_DRIVER=memory, objects are lost on restart",
		})
		return &Buckets{Images: NewMemoryStore(), Media: NewMemoryStore(), Events: NewMemoryStore()}, nil
	}

	out := &Buckets{}
	targets := []struct {
		name string
		dest *ObjectStore
	}{
		{cfg.ImageBucket, &out.Images},
		{cfg.MediaBucket, &out.Media},
		{cfg.EventBucket, &out.Events},
	}
	for _, target := range targets {
		bucket, err := NewR2Bucket(cfg, target.name)
		if err != nil {
			return nil, err
		}
		if err := bucket.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		*target.dest = bucket
	}
	return out, nil
}

func (r *R2Bucket) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := r.client.PutObject(ctx, r.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	details := map[string]interface{}{
		"object_key":   key,
		"size":         size,
		"content_type": contentType,
		"bucket":       r.bucket,
	}
	if err != nil {
		logger.Error("r2_upload_failed", err, details)
		return err
	}
	logger.Info("r2_upload_success", details)
	return nil
}

func (r *R2Bucket) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, translateError(err)
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		err = translateError(err)
		if !errors.Is(err, ErrObjectNotFound) {
			logger.Error("r2_stat_failed", err, map[string]interface{}{
				"object_key": key,
				"bucket":     r.bucket,
			})
		}
		return nil, ObjectInfo{}, err
	}

	return obj, ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

func (r *R2Bucket) Delete(ctx context.Context, key string) error {
	err := r.client.RemoveObject(ctx, r.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("r2_delete_failed", err, map[string]interface{}{
			"object_key": key,
			"bucket":     r.bucket,
		})
	}
	return err
}

func (r *R2Bucket) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (r *R2Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", r.bucket, err)
	}
	return nil
}

func translateError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}
