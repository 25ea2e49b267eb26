package source

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

const sampleCSV = "old_email,new_email\na@example.com,b@example.com\n"

// memOpener returns a fresh in-memory bucket holding objects on every open,
// since the fetcher closes the bucket after each fetch.
func memOpener(t *testing.T, objects map[string][]byte) (Opener, *int) {
	t.Helper()
	opened := 0
	return func(ctx context.Context, name string) (*blob.Bucket, error) {
		opened++
		b := memblob.OpenBucket(nil)
		for key, data := range objects {
			if err := b.WriteAll(ctx, key, data, nil); err != nil {
				return nil, err
			}
		}
		return b, nil
	}, &opened
}

func newFetcher(t *testing.T, open Opener) *BlobFetcher {
	t.Helper()
	f, err := NewBlobFetcher(open)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFetch_ReturnsText(t *testing.T) {
	open, opened := memOpener(t, map[string][]byte{"path/to/file.csv": []byte(sampleCSV)})
	f := newFetcher(t, open)

	text, err := f.Fetch(context.Background(), Location{Bucket: "my-bucket", Key: "path/to/file.csv"})

	require.NoError(t, err)
	assert.Equal(t, sampleCSV, text)
	assert.Equal(t, 1, *opened)
}

func TestFetch_NotFound(t *testing.T) {
	open, _ := memOpener(t, nil)
	f := newFetcher(t, open)

	_, err := f.Fetch(context.Background(), Location{Bucket: "my-bucket", Key: "missing.csv"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "not found")
}

func TestFetch_Unreachable(t *testing.T) {
	f := newFetcher(t, func(ctx context.Context, name string) (*blob.Bucket, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	_, err := f.Fetch(context.Background(), Location{Bucket: "my-bucket", Key: "file.csv"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestFetch_InvalidUTF8(t *testing.T) {
	open, _ := memOpener(t, map[string][]byte{"file.csv": {0xff, 0xfe, 0xfd}})
	f := newFetcher(t, open)

	_, err := f.Fetch(context.Background(), Location{Bucket: "b", Key: "file.csv"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestFetch_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	open, _ := memOpener(t, map[string][]byte{"file.csv.gz": buf.Bytes()})
	f := newFetcher(t, open)

	text, err := f.Fetch(context.Background(), Location{Bucket: "b", Key: "file.csv.gz"})

	require.NoError(t, err)
	assert.Equal(t, sampleCSV, text)
}

func TestFetch_Zstd(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(sampleCSV), nil)
	require.NoError(t, enc.Close())

	open, _ := memOpener(t, map[string][]byte{"file.csv.zst": compressed})
	f := newFetcher(t, open)

	text, err := f.Fetch(context.Background(), Location{Bucket: "b", Key: "file.csv.zst"})

	require.NoError(t, err)
	assert.Equal(t, sampleCSV, text)
}

func TestFetch_CorruptGzip(t *testing.T) {
	open, _ := memOpener(t, map[string][]byte{"file.csv.gz": {0x1f, 0x8b, 0x08, 0x00}})
	f := newFetcher(t, open)

	_, err := f.Fetch(context.Background(), Location{Bucket: "b", Key: "file.csv.gz"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestFetch_GzipKeyServedDecoded(t *testing.T) {
	open, _ := memOpener(t, map[string][]byte{"file.csv.gz": []byte(sampleCSV)})
	f := newFetcher(t, open)

	text, err := f.Fetch(context.Background(), Location{Bucket: "b", Key: "file.csv.gz"})

	require.NoError(t, err)
	assert.Equal(t, sampleCSV, text)
}

func TestFetch_GzipWithoutSuffix(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	open, _ := memOpener(t, map[string][]byte{"file.csv": buf.Bytes()})
	f := newFetcher(t, open)

	text, err := f.Fetch(context.Background(), Location{Bucket: "b", Key: "file.csv"})

	require.NoError(t, err)
	assert.Equal(t, sampleCSV, text)
}

func TestIsCompressed(t *testing.T) {
	assert.True(t, IsCompressed([]byte{0x1f, 0x8b, 0x08}))
	assert.True(t, IsCompressed([]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}))
	assert.False(t, IsCompressed([]byte(sampleCSV)))
	assert.False(t, IsCompressed(nil))
}

func TestFetch_FileBackend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "renames"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "renames", "batch.csv"), []byte(sampleCSV), 0644))

	open, err := NewOpener(Config{Backend: "file"})
	require.NoError(t, err)
	f := newFetcher(t, open)

	text, err := f.Fetch(context.Background(), Location{Bucket: dir, Key: "renames/batch.csv"})
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, text)

	_, err = f.Fetch(context.Background(), Location{Bucket: dir, Key: "renames/other.csv"})
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestBucketURL(t *testing.T) {
	u, err := BucketURL(Config{Backend: "gcs"}, "my-bucket")
	require.NoError(t, err)
	assert.Equal(t, "gs://my-bucket", u)

	u, err = BucketURL(Config{Backend: "s3", S3Region: "us-west-000", S3Endpoint: "https://s3.example.com"}, "b")
	require.NoError(t, err)
	assert.Equal(t, "s3://b?endpoint=https%3A%2F%2Fs3.example.com&region=us-west-000&s3ForcePathStyle=true", u)

	u, err = BucketURL(Config{Backend: "s3"}, "b")
	require.NoError(t, err)
	assert.Equal(t, "s3://b", u)

	_, err = BucketURL(Config{Backend: "ftp"}, "b")
	assert.Error(t, err)
}

func TestNewOpener_UnknownBackend(t *testing.T) {
	_, err := NewOpener(Config{Backend: "ftp"})
	assert.Error(t, err)
}

func TestURI(t *testing.T) {
	assert.Equal(t, "gs://b/k.csv", URI("gcs", Location{Bucket: "b", Key: "k.csv"}))
	assert.Equal(t, "s3://b/k.csv", URI("s3", Location{Bucket: "b", Key: "k.csv"}))
}
