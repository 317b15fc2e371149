package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"thumbnail/pkg/storage"
)

// DefaultS3Endpoint is used when no endpoint is configured, which targets
// Amazon S3 itself.
const DefaultS3Endpoint = "s3.amazonaws.com"

// MinioConfig holds the connection parameters of one S3 bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Secure    bool

	// MaxConnections caps concurrent connections to the endpoint. Values
	// of 1 or less keep the transport defaults.
	MaxConnections int
}

// MinioStorage is an ObjectStore backed by a single S3-compatible bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage creates an S3 client for cfg. No network call is made.
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket must not be empty")
	}

	endpoint, secure, err := splitEndpoint(cfg.Endpoint, cfg.Secure)
	if err != nil {
		return nil, err
	}

	transport, err := minio.DefaultTransport(secure)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	if cfg.MaxConnections > 1 {
		transport.MaxConnsPerHost = cfg.MaxConnections
		transport.MaxIdleConnsPerHost = cfg.MaxConnections
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %q: %w", endpoint, err)
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

// splitEndpoint accepts either a bare host[:port] or a URL and returns the
// host part plus whether TLS should be used.
func splitEndpoint(endpoint string, secure bool) (string, bool, error) {
	if endpoint == "" {
		return DefaultS3Endpoint, true, nil
	}

	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), secure, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	if u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	return u.Host, u.Scheme == "https", nil
}

// isNotFound reports whether err is the S3 "key does not exist" response.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket")
}

func (s *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	if isNotFound(err) {
		return false, nil
	}

	return false, fmt.Errorf("stat object %q in bucket %q: %w", key, s.bucket, err)
}

func (s *MinioStorage) Get(ctx context.Context, key string) (*storage.Object, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object %q from bucket %q: %w", key, s.bucket, err)
	}

	// GetObject is lazy; Stat performs the request and surfaces a missing
	// key.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object %q from bucket %q: %w", key, s.bucket, err)
	}

	return &storage.Object{
		Body: obj,
		Metadata: storage.Metadata{
			ContentType:   info.ContentType,
			ContentLength: info.Size,
			LengthKnown:   info.Size >= 0,
			ETag:          info.ETag,
			LastModified:  info.LastModified.UTC(),
		},
	}, true, nil
}

func (s *MinioStorage) Put(ctx context.Context, key string, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q to bucket %q: %w", key, s.bucket, err)
	}
	return nil
}
