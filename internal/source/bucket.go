package source

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local directory driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// Config selects the bucket driver.
type Config struct {
	Backend    string // "gcs" | "s3" | "file"
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string
}

// Opener opens a bucket by name.
type Opener func(ctx context.Context, bucket string) (*blob.Bucket, error)

// NewOpener returns an Opener for the configured backend.
// GCS uses Application Default Credentials (ADC).
func NewOpener(cfg Config) (Opener, error) {
	switch cfg.Backend {
	case "gcs", "s3", "file":
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}

	return func(ctx context.Context, bucket string) (*blob.Bucket, error) {
		bucketURL, err := BucketURL(cfg, bucket)
		if err != nil {
			return nil, err
		}
		return blob.OpenBucket(ctx, bucketURL)
	}, nil
}

// BucketURL builds the gocloud.dev URL for a bucket.
//
//	gcs:  gs://bucket-name
//	s3:   s3://bucket-name?region=us-east-1
//	      s3://bucket-name?endpoint=https://s3.us-west-000.backblazeb2.com&region=us-west-000
//	file: file:///abs/dir
func BucketURL(cfg Config, bucket string) (string, error) {
	switch cfg.Backend {
	case "gcs":
		return fmt.Sprintf("gs://%s", bucket), nil
	case "s3":
		bucketURL := fmt.Sprintf("s3://%s", bucket)
		params := url.Values{}
		if cfg.S3Region != "" {
			params.Set("region", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			params.Set("endpoint", cfg.S3Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			bucketURL = bucketURL + "?" + params.Encode()
		}
		return bucketURL, nil
	case "file":
		abs, err := filepath.Abs(bucket)
		if err != nil {
			return "", fmt.Errorf("resolve local bucket %s: %w", bucket, err)
		}
		return "file://" + filepath.ToSlash(abs), nil
	default:
		return "", fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// URI returns a display URI for an object.
func URI(backend string, loc Location) string {
	switch backend {
	case "s3":
		return fmt.Sprintf("s3://%s/%s", loc.Bucket, loc.Key)
	case "file":
		return "file://" + filepath.ToSlash(filepath.Join(loc.Bucket, loc.Key))
	default:
		return fmt.Sprintf("gs://%s/%s", loc.Bucket, loc.Key)
	}
}
