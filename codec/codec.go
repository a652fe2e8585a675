package codec

import (
	"context"
	"io"
)

// Compression names accepted by the codecs in this package. Snappy is
// parquet-only.
const (
	CompressionNone   = ""
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
)

// Codec converts a slice of typed records into one encoded payload.
//
// Implementations must be safe for concurrent use unless documented otherwise.
type Codec[iType any] interface {
	Encode(ctx context.Context, items []iType) (data []byte, err error)
	FileExtension() string
	ContentType() string
}

// StreamCodec is an optional interface for codecs that can write directly
// to an io.Writer to avoid buffering the full output in memory.
type StreamCodec[iType any] interface {
	EncodeTo(ctx context.Context, items []iType, w io.Writer) error
	FileExtension() string
	ContentType() string
}
