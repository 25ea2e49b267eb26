package source

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrSourceUnavailable is returned when the CSV object cannot be read as text:
// it does not exist, the store is unreachable, or the bytes are not UTF-8.
var ErrSourceUnavailable = errors.New("source unavailable")

// Location identifies the CSV object.
type Location struct {
	Bucket string
	Key    string
}

// Fetcher retrieves the full text of an object.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) (string, error)
}

// BlobFetcher reads objects through gocloud.dev buckets. A bucket is opened per
// fetch and closed afterwards; the job fetches exactly once.
type BlobFetcher struct {
	open    Opener
	decoder *Decoder
}

// NewBlobFetcher creates a fetcher that opens buckets with open.
func NewBlobFetcher(open Opener) (*BlobFetcher, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &BlobFetcher{open: open, decoder: decoder}, nil
}

// Fetch implements Fetcher.
func (f *BlobFetcher) Fetch(ctx context.Context, loc Location) (string, error) {
	bucket, err := f.open(ctx, loc.Bucket)
	if err != nil {
		return "", fmt.Errorf("%w: open bucket %s: %v", ErrSourceUnavailable, loc.Bucket, err)
	}
	defer bucket.Close()

	return f.read(ctx, bucket, loc)
}

func (f *BlobFetcher) read(ctx context.Context, bucket *blob.Bucket, loc Location) (string, error) {
	data, err := bucket.ReadAll(ctx, loc.Key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return "", fmt.Errorf("%w: object %s not found in %s", ErrSourceUnavailable, loc.Key, loc.Bucket)
		}
		return "", fmt.Errorf("%w: read object %s: %v", ErrSourceUnavailable, loc.Key, err)
	}

	if IsCompressed(data) {
		data, err = f.decoder.Decompress(loc.Key, data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: object %s is not valid UTF-8", ErrSourceUnavailable, loc.Key)
	}

	return string(data), nil
}

// Close releases decoder resources.
func (f *BlobFetcher) Close() error {
	if f.decoder != nil {
		f.decoder.Close()
	}
	return nil
}

// Verify BlobFetcher implements Fetcher.
var _ Fetcher = (*BlobFetcher)(nil)
