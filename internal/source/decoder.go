package source

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decoder handles decompression of compressed CSV objects.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a new decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Decompress inflates gzip or zstd data, detected by magic bytes. Anything
// else is returned unchanged, so an object the store already served decoded
// (Content-Encoding: gzip) is not inflated twice. key only labels errors.
func (d *Decoder) Decompress(key string, data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		out, err := d.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress %s: %w", key, err)
		}
		return out, nil
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip header %s: %w", key, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress %s: %w", key, err)
		}
		return out, nil
	default:
		return data, nil
	}
}

// IsCompressed reports whether data starts with a gzip or zstd header.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic) || bytes.HasPrefix(data, zstdMagic)
}
