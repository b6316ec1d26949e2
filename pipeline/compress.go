package pipeline

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression algorithm tags as stored in object metadata. Changing
// them breaks decodability of existing objects.
const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"
	AlgorithmLZ4  = "lz4"
)

// GzipCodec compresses with gzip at a configurable level.
type GzipCodec struct {
	level int
}

// NewGzipCodec returns a gzip codec at the default compression level.
func NewGzipCodec() *GzipCodec {
	return &GzipCodec{level: gzip.DefaultCompression}
}

// NewGzipCodecLevel returns a gzip codec at the given level.
func NewGzipCodecLevel(level int) *GzipCodec {
	return &GzipCodec{level: level}
}

// Algorithm implements Codec.
func (c *GzipCodec) Algorithm() string { return AlgorithmGzip }

// Encoder implements Codec.
func (c *GzipCodec) Encoder(dst io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(dst, c.level)
}

// Decoder implements Codec.
func (c *GzipCodec) Decoder(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

// ZstdCodec compresses with zstd at the default level, the usual
// tradeoff for mixed content (good ratio, fast decode).
type ZstdCodec struct{}

// NewZstdCodec returns a zstd codec.
func NewZstdCodec() *ZstdCodec { return &ZstdCodec{} }

// Algorithm implements Codec.
func (c *ZstdCodec) Algorithm() string { return AlgorithmZstd }

// Encoder implements Codec.
func (c *ZstdCodec) Encoder(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

// Decoder implements Codec.
func (c *ZstdCodec) Decoder(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// LZ4Codec compresses with LZ4 frames: lower ratio than zstd but very
// fast, the right pick for hot-path binary data.
type LZ4Codec struct{}

// NewLZ4Codec returns an LZ4 codec.
func NewLZ4Codec() *LZ4Codec { return &LZ4Codec{} }

// Algorithm implements Codec.
func (c *LZ4Codec) Algorithm() string { return AlgorithmLZ4 }

// Encoder implements Codec.
func (c *LZ4Codec) Encoder(dst io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(dst), nil
}

// Decoder implements Codec.
func (c *LZ4Codec) Decoder(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}
