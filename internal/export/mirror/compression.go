package mirror

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// codec pairs a Content-Encoding value with its encoder.
type codec struct {
	contentEncoding string
	encode          func(c *Compressor, data []byte) ([]byte, error)
}

var codecs = map[string]codec{
	CompressionNone: {
		encode: func(_ *Compressor, data []byte) ([]byte, error) { return data, nil },
	},
	CompressionGzip: {
		contentEncoding: "gzip",
		encode: func(_ *Compressor, data []byte) ([]byte, error) {
			return streamEncode(data, func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) })
		},
	},
	CompressionZlib: {
		contentEncoding: "deflate",
		encode: func(_ *Compressor, data []byte) ([]byte, error) {
			return streamEncode(data, func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) })
		},
	},
	CompressionZstd: {
		contentEncoding: "zstd",
		encode: func(c *Compressor, data []byte) ([]byte, error) {
			return c.zstd.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
		},
	},
	CompressionSnappy: {
		contentEncoding: "snappy",
		encode: func(_ *Compressor, data []byte) ([]byte, error) {
			return snappy.Encode(nil, data), nil
		},
	},
}

// Compressor encodes request bodies.
type Compressor struct {
	codec codec
	zstd  *zstd.Encoder
}

// NewCompressor creates a Compressor for algorithm.
func NewCompressor(algorithm string) (*Compressor, error) {
	cd, ok := codecs[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported compression algorithm: %q", algorithm)
	}

	c := &Compressor{codec: cd}

	if algorithm == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}

		c.zstd = enc
	}

	return c, nil
}

// Compress encodes data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	return c.codec.encode(c, data)
}

// ContentEncoding returns the header value, or "" for no compression.
func (c *Compressor) ContentEncoding() string {
	return c.codec.contentEncoding
}

// Close releases encoder resources.
func (c *Compressor) Close() error {
	if c.zstd != nil {
		return c.zstd.Close()
	}

	return nil
}

func streamEncode(data []byte, wrap func(io.Writer) io.WriteCloser) ([]byte, error) {
	var buf bytes.Buffer

	w := wrap(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("writing compressed stream: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing compressed stream: %w", err)
	}

	return buf.Bytes(), nil
}
