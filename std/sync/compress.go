package sync

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressionScheme names one of the codecs negotiated out of band
// between peers for ContentCompression/DigestCompression. Both sides
// of a sync group must agree on the same scheme.
type CompressionScheme string

const (
	CompressionNone CompressionScheme = "none"
	CompressionGzip CompressionScheme = "gzip"
	CompressionZstd CompressionScheme = "zstd"
)

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

// compress applies scheme to data.
func compress(scheme CompressionScheme, data []byte) ([]byte, error) {
	switch scheme {
	case "", CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("sync: unknown compression scheme %q", scheme)
}

// decompress reverses compress.
func decompress(scheme CompressionScheme, data []byte) ([]byte, error) {
	switch scheme {
	case "", CompressionNone:
		return data, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd:
		return zstdDecoder.DecodeAll(data, nil)
	}
	return nil, fmt.Errorf("sync: unknown compression scheme %q", scheme)
}
