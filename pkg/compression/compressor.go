// Package compression compresses output artifacts.
//
// Zstd is the default for CSV output; gzip is available for consumers that
// cannot read zstd. Encoders run single-threaded so the same input always
// yields the same bytes.
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Default,
//	})
//	w, err := comp.NewWriter(file)
//	defer w.Close()
//
//	r, err := comp.NewReader(file)
//	defer r.Close()
package compression

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// Compressor provides compression and decompression functionality.
// All implementations are safe for concurrent use.
type Compressor interface {
	// NewWriter wraps dst; Close flushes the frame but does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)
	// NewReader wraps src.
	NewReader(src io.Reader) (io.ReadCloser, error)
	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm
	// Extension is the file suffix including the dot, or "".
	Extension() string
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns zstd at the default level.
func DefaultConfig() *Config {
	return &Config{Algorithm: Zstd, Level: Default}
}

// NewCompressor creates a compressor for config.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	switch config.Algorithm {
	case None, "":
		return noneCompressor{}, nil
	case Gzip:
		return &gzipCompressor{level: mapGzipLevel(config.Level)}, nil
	case Zstd:
		return newZstdCompressor(config.Level), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", config.Algorithm)
	}
}

type noneCompressor struct{}

func (noneCompressor) Algorithm() Algorithm { return None }
func (noneCompressor) Extension() string    { return "" }

func (noneCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

func (noneCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type gzipCompressor struct {
	level int
}

func (gc *gzipCompressor) Algorithm() Algorithm { return Gzip }
func (gc *gzipCompressor) Extension() string    { return ".gz" }

func (gc *gzipCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w, err := gzip.NewWriterLevel(dst, gc.level)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create gzip writer")
	}
	return w, nil
}

func (gc *gzipCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	r, err := gzip.NewReader(src)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open gzip stream")
	}
	return r, nil
}

type zstdCompressor struct {
	level zstd.EncoderLevel
}

func newZstdCompressor(level Level) *zstdCompressor {
	return &zstdCompressor{level: mapZstdLevel(level)}
}

func (zc *zstdCompressor) encoderOptions() []zstd.EOption {
	return []zstd.EOption{
		zstd.WithEncoderLevel(zc.level),
		zstd.WithEncoderConcurrency(1),
	}
}

func (zc *zstdCompressor) Algorithm() Algorithm { return Zstd }
func (zc *zstdCompressor) Extension() string    { return ".zst" }

func (zc *zstdCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(dst, zc.encoderOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create zstd writer")
	}
	return enc, nil
}

func (zc *zstdCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open zstd stream")
	}
	return dec.IOReadCloser(), nil
}

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
