// Command thumbnail-seed writes thumbnails straight into an S3 bucket. It
// scales a local image to every thumbnail size and stores the results
// under the keys the thumbnail server looks up.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"thumbnail/internal/thumbnail"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string, region string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
		}
		slog.Info("Created bucket", "bucket", bucketName)
	}
	return nil
}

// UploadThumbnail stores one derived image under key.
func UploadThumbnail(ctx context.Context, client *minio.Client, bucketName string, key string, contentType string, data []byte) error {
	_, err := client.PutObject(ctx, bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", key, bucketName, err)
	}

	slog.Info("Uploaded thumbnail", "key", key, "bucket", bucketName, "size", len(data))
	return nil
}

// ListThumbnails logs every stored size of id.
func ListThumbnails(ctx context.Context, client *minio.Client, bucketName string, id string) error {
	for objectInfo := range client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Prefix: id}) {
		if objectInfo.Err != nil {
			return fmt.Errorf("failed to list objects in bucket %q: %w", bucketName, objectInfo.Err)
		}
		slog.Info("Thumbnail in bucket", "key", objectInfo.Key, "size", objectInfo.Size, "last_modified", objectInfo.LastModified)
	}
	return nil
}

// resolveID returns the thumbnail id given on the command line, or the hash
// of the source URL.
func resolveID(id string, sourceURL string) (string, error) {
	if id != "" {
		return id, nil
	}
	if sourceURL == "" {
		return "", errors.New("either -id or -url is required")
	}
	return thumbnail.HashURL(sourceURL)
}

func Run(ctx context.Context) error {
	endpoint := flag.String("endpoint", getenv("S3_ENDPOINT", "localhost:9000"), "S3 endpoint")
	accessKey := flag.String("access-key", getenv("S3_ACCESS_KEY", "minioadmin"), "S3 access key")
	secretKey := flag.String("secret-key", getenv("S3_SECRET_KEY", "minioadmin"), "S3 secret key")
	region := flag.String("region", getenv("S3_REGION", ""), "S3 region")
	bucket := flag.String("bucket", getenv("S3_BUCKET", "thumbnails"), "bucket to write to")
	secure := flag.Bool("secure", false, "use TLS")
	sourceURL := flag.String("url", "", "source URL the thumbnail belongs to")
	id := flag.String("id", "", "thumbnail id, defaults to the MD5 hash of -url")
	file := flag.String("file", "", "image to upload; without it only the storage keys are printed")

	flag.Parse()

	thumbnailID, err := resolveID(*id, *sourceURL)
	if err != nil {
		return err
	}

	if *file == "" {
		for _, size := range thumbnail.Sizes {
			fmt.Println(thumbnail.StorageKey(thumbnailID, int(size)))
		}
		return nil
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	client, err := minio.New(*endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(*accessKey, *secretKey, ""),
		Secure:       *secure,
		Region:       *region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	if err := EnsureBucket(ctx, client, *bucket, *region); err != nil {
		return err
	}

	processor := thumbnail.NewImageProcessor()
	for _, size := range thumbnail.Sizes {
		scaled, err := processor.Process(data, int(size))
		if err != nil {
			return fmt.Errorf("failed to scale %s to %d: %w", *file, size, err)
		}

		key := thumbnail.StorageKey(thumbnailID, int(size))
		if err := UploadThumbnail(ctx, client, *bucket, key, processor.ContentType(), scaled); err != nil {
			return err
		}
	}

	return ListThumbnails(ctx, client, *bucket, thumbnailID)
}

func main() {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
	})

	slog.SetDefault(slog.New(handler))

	if err := Run(context.Background()); err != nil {
		slog.Error("thumbnail-seed failed", "err", err)
		os.Exit(1)
	}
}
